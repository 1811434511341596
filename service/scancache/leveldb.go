package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	state/<address>                     -> levelState
//	bucket/<address>/<month>            -> levelBucket
//	tx/<address>/<month>/<seq>          -> TransactionSummary
//	sig/<address>/<signature>           -> empty
const (
	statePrefix  = "state/"
	bucketPrefix = "bucket/"
	txPrefix     = "tx/"
	sigPrefix    = "sig/"
)

// LevelDBStore persists scan state in an embedded LevelDB database so partial
// scans survive restarts.
type LevelDBStore struct {
	db    *leveldb.DB
	locks *xsync.Map[string, *sync.Mutex]
}

type levelState struct {
	Cursor   string `json:"cursor"`
	Complete bool   `json:"complete"`
	Seq      uint64 `json:"seq"`
}

type levelBucket struct {
	Total        int `json:"total"`
	SuccessCount int `json:"successCount"`
}

// OpenLevelDBStore opens (or creates) a store at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return NewLevelDBStore(db), nil
}

// NewLevelDBStore wraps an already-open database.
func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{
		db:    db,
		locks: xsync.NewMap[string, *sync.Mutex](),
	}
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

func (s *LevelDBStore) lock(address string) func() {
	mu, _ := s.locks.LoadOrStore(address, &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

func (s *LevelDBStore) loadState(address string) (levelState, error) {
	var st levelState
	raw, err := s.db.Get([]byte(statePrefix+address), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return st, ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("failed to read state for %s: %w", address, err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("failed to decode state for %s: %w", address, err)
	}
	return st, nil
}

// loadOrInitState returns the stored state or a zero state for a new address.
func (s *LevelDBStore) loadOrInitState(address string) (levelState, error) {
	st, err := s.loadState(address)
	if errors.Is(err, ErrNotFound) {
		return levelState{}, nil
	}
	return st, err
}

func (s *LevelDBStore) GetOrCreate(ctx context.Context, address string) (Snapshot, error) {
	unlock := s.lock(address)
	defer unlock()

	st, err := s.loadState(address)
	if errors.Is(err, ErrNotFound) {
		batch := new(leveldb.Batch)
		putJSON(batch, statePrefix+address, st)
		if err := s.db.Write(batch, nil); err != nil {
			return Snapshot{}, fmt.Errorf("failed to create state for %s: %w", address, err)
		}
		return Snapshot{Months: map[MonthKey]MonthSummary{}}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return s.snapshot(address, st)
}

func (s *LevelDBStore) Snapshot(ctx context.Context, address string) (Snapshot, bool, error) {
	st, err := s.loadState(address)
	if errors.Is(err, ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	snap, err := s.snapshot(address, st)
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *LevelDBStore) snapshot(address string, st levelState) (Snapshot, error) {
	prefix := bucketPrefix + address + "/"
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	months := make(map[MonthKey]MonthSummary)
	for it.Next() {
		var b levelBucket
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return Snapshot{}, fmt.Errorf("failed to decode bucket %s: %w", it.Key(), err)
		}
		month := MonthKey(string(it.Key())[len(prefix):])
		months[month] = NewMonthSummary(b.SuccessCount, b.Total)
	}
	if err := it.Error(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to iterate buckets for %s: %w", address, err)
	}

	return Snapshot{
		Months:   months,
		Cursor:   st.Cursor,
		Complete: st.Complete,
	}, nil
}

func (s *LevelDBStore) Record(ctx context.Context, address string, txs []TransactionSummary) error {
	unlock := s.lock(address)
	defer unlock()

	st, err := s.loadOrInitState(address)
	if err != nil {
		return err
	}

	buckets := make(map[MonthKey]*levelBucket)
	inBatch := make(map[string]struct{}, len(txs))
	batch := new(leveldb.Batch)

	for _, tx := range txs {
		sigKey := sigPrefix + address + "/" + tx.Signature
		if _, dup := inBatch[tx.Signature]; dup {
			continue
		}
		seen, err := s.db.Has([]byte(sigKey), nil)
		if err != nil {
			return fmt.Errorf("failed to check signature %s: %w", tx.Signature, err)
		}
		if seen {
			continue
		}
		inBatch[tx.Signature] = struct{}{}

		month := tx.Month()
		b, ok := buckets[month]
		if !ok {
			b, err = s.loadBucket(address, month)
			if err != nil {
				return err
			}
			buckets[month] = b
		}
		b.Total++
		if tx.Succeeded() {
			b.SuccessCount++
		}

		st.Seq++
		putJSON(batch, fmt.Sprintf("%s%s/%s/%020d", txPrefix, address, month, st.Seq), tx)
		batch.Put([]byte(sigKey), nil)
	}

	for month, b := range buckets {
		putJSON(batch, bucketPrefix+address+"/"+string(month), b)
	}
	putJSON(batch, statePrefix+address, st)

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to record %d transactions for %s: %w", len(txs), address, err)
	}
	return nil
}

func (s *LevelDBStore) loadBucket(address string, month MonthKey) (*levelBucket, error) {
	b := &levelBucket{}
	raw, err := s.db.Get([]byte(bucketPrefix+address+"/"+string(month)), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket %s/%s: %w", address, month, err)
	}
	if err := json.Unmarshal(raw, b); err != nil {
		return nil, fmt.Errorf("failed to decode bucket %s/%s: %w", address, month, err)
	}
	return b, nil
}

func (s *LevelDBStore) AdvanceCursor(ctx context.Context, address, signature string) error {
	return s.updateState(address, func(st *levelState) {
		if !st.Complete {
			st.Cursor = signature
		}
	})
}

func (s *LevelDBStore) MarkComplete(ctx context.Context, address string) error {
	return s.updateState(address, func(st *levelState) {
		st.Complete = true
	})
}

func (s *LevelDBStore) updateState(address string, fn func(*levelState)) error {
	unlock := s.lock(address)
	defer unlock()

	st, err := s.loadOrInitState(address)
	if err != nil {
		return err
	}
	fn(&st)

	batch := new(leveldb.Batch)
	putJSON(batch, statePrefix+address, st)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to write state for %s: %w", address, err)
	}
	return nil
}

func (s *LevelDBStore) MonthDetail(ctx context.Context, address string, month MonthKey) ([]TransactionSummary, error) {
	prefix := fmt.Sprintf("%s%s/%s/", txPrefix, address, month)
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()

	out := []TransactionSummary{}
	for it.Next() {
		var tx TransactionSummary
		if err := json.Unmarshal(it.Value(), &tx); err != nil {
			return nil, fmt.Errorf("failed to decode transaction %s: %w", it.Key(), err)
		}
		tx.Err = NormalizeErr(tx.Err)
		out = append(out, tx)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions for %s/%s: %w", address, month, err)
	}
	return out, nil
}

func putJSON(batch *leveldb.Batch, key string, v any) {
	raw, _ := json.Marshal(v)
	batch.Put([]byte(key), raw)
}
