package scancache

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// MemoryStore keeps scan state for the life of the process. States are never
// evicted.
type MemoryStore struct {
	states *xsync.Map[string, *scanState]
}

type scanState struct {
	mu       sync.RWMutex
	months   map[MonthKey]*monthBucket
	seen     map[string]struct{}
	cursor   string
	complete bool
}

type monthBucket struct {
	transactions []TransactionSummary
	successCount int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: xsync.NewMap[string, *scanState](),
	}
}

func newScanState() *scanState {
	return &scanState{
		months: make(map[MonthKey]*monthBucket),
		seen:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) state(address string) *scanState {
	if st, ok := m.states.Load(address); ok {
		return st
	}
	st, _ := m.states.LoadOrStore(address, newScanState())
	return st
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, address string) (Snapshot, error) {
	return m.state(address).snapshot(), nil
}

func (m *MemoryStore) Snapshot(ctx context.Context, address string) (Snapshot, bool, error) {
	st, ok := m.states.Load(address)
	if !ok {
		return Snapshot{}, false, nil
	}
	return st.snapshot(), true, nil
}

func (m *MemoryStore) Record(ctx context.Context, address string, txs []TransactionSummary) error {
	st := m.state(address)
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, tx := range txs {
		if _, dup := st.seen[tx.Signature]; dup {
			continue
		}
		st.seen[tx.Signature] = struct{}{}

		key := tx.Month()
		b, ok := st.months[key]
		if !ok {
			b = &monthBucket{}
			st.months[key] = b
		}
		b.transactions = append(b.transactions, tx)
		if tx.Succeeded() {
			b.successCount++
		}
	}
	return nil
}

func (m *MemoryStore) AdvanceCursor(ctx context.Context, address, signature string) error {
	st := m.state(address)
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.complete {
		st.cursor = signature
	}
	return nil
}

func (m *MemoryStore) MarkComplete(ctx context.Context, address string) error {
	st := m.state(address)
	st.mu.Lock()
	st.complete = true
	st.mu.Unlock()
	return nil
}

func (m *MemoryStore) MonthDetail(ctx context.Context, address string, month MonthKey) ([]TransactionSummary, error) {
	st, ok := m.states.Load(address)
	if !ok {
		return []TransactionSummary{}, nil
	}
	st.mu.RLock()
	defer st.mu.RUnlock()

	b, ok := st.months[month]
	if !ok {
		return []TransactionSummary{}, nil
	}
	out := make([]TransactionSummary, len(b.transactions))
	copy(out, b.transactions)
	return out, nil
}

func (st *scanState) snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	months := make(map[MonthKey]MonthSummary, len(st.months))
	for k, b := range st.months {
		months[k] = NewMonthSummary(b.successCount, len(b.transactions))
	}
	return Snapshot{
		Months:   months,
		Cursor:   st.cursor,
		Complete: st.complete,
	}
}
