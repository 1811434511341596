package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scancache"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	tableStates       = "scan_states"
	tableTransactions = "scan_transactions"
)

// Store is a Postgres-backed scancache.Store. Transactions are kept one row
// per signature; month summaries are computed at read time.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

var _ scancache.Store = (*Store)(nil)

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema files in name order inside a single
// transaction. Every statement is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return fmt.Errorf("failed to read schema directory: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		content, err := schemaFS.ReadFile(path.Join("schema", e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to apply schema file %s: %w", e.Name(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

const ensureStateSQL = `
INSERT INTO scan_states (address) VALUES ($1)
ON CONFLICT (address) DO NOTHING`

const insertTransactionSQL = `
INSERT INTO scan_transactions (address, signature, month, slot, block_time, err)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (address, signature) DO NOTHING`

func (s *Store) GetOrCreate(ctx context.Context, address string) (scancache.Snapshot, error) {
	start := time.Now()
	_, err := s.pool.Exec(ctx, ensureStateSQL, address)
	s.observe("ensure_state", tableStates, start, err)
	if err != nil {
		return scancache.Snapshot{}, fmt.Errorf("failed to create scan state: %w", err)
	}

	snap, _, err := s.Snapshot(ctx, address)
	return snap, err
}

func (s *Store) Snapshot(ctx context.Context, address string) (scancache.Snapshot, bool, error) {
	snap := scancache.Snapshot{Months: make(map[scancache.MonthKey]scancache.MonthSummary)}

	start := time.Now()
	err := s.pool.QueryRow(ctx,
		`SELECT cursor_sig, complete FROM scan_states WHERE address = $1`, address,
	).Scan(&snap.Cursor, &snap.Complete)
	if errors.Is(err, pgx.ErrNoRows) {
		s.observe("get_state", tableStates, start, nil)
		return scancache.Snapshot{}, false, nil
	}
	s.observe("get_state", tableStates, start, err)
	if err != nil {
		return scancache.Snapshot{}, false, fmt.Errorf("failed to get scan state: %w", err)
	}

	start = time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT month,
		       count(*) FILTER (WHERE err IS NULL),
		       count(*)
		FROM scan_transactions
		WHERE address = $1
		GROUP BY month`, address)
	if err != nil {
		s.observe("summarize_months", tableTransactions, start, err)
		return scancache.Snapshot{}, false, fmt.Errorf("failed to summarize months: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			month          string
			success, total int
		)
		if err := rows.Scan(&month, &success, &total); err != nil {
			return scancache.Snapshot{}, false, fmt.Errorf("failed to scan month summary: %w", err)
		}
		snap.Months[scancache.MonthKey(month)] = scancache.NewMonthSummary(success, total)
	}
	err = rows.Err()
	s.observe("summarize_months", tableTransactions, start, err)
	if err != nil {
		return scancache.Snapshot{}, false, fmt.Errorf("failed to summarize months: %w", err)
	}
	return snap, true, nil
}

func (s *Store) Record(ctx context.Context, address string, txs []scancache.TransactionSummary) error {
	start := time.Now()
	err := s.record(ctx, address, txs)
	s.observe("record", tableTransactions, start, err)
	return err
}

func (s *Store) record(ctx context.Context, address string, txs []scancache.TransactionSummary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Queued statements run in order, so BIGSERIAL ids follow arrival order.
	batch := &pgx.Batch{}
	batch.Queue(ensureStateSQL, address)
	for _, t := range txs {
		var errText *string
		if raw := scancache.NormalizeErr(t.Err); raw != nil {
			text := string(raw)
			errText = &text
		}
		batch.Queue(insertTransactionSQL,
			address, t.Signature, string(t.Month()), int64(t.Slot), t.BlockTime, errText)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert transactions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

func (s *Store) AdvanceCursor(ctx context.Context, address, signature string) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_states (address, cursor_sig) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE
		SET cursor_sig = EXCLUDED.cursor_sig, updated_at = NOW()
		WHERE scan_states.complete = FALSE`, address, signature)
	s.observe("advance_cursor", tableStates, start, err)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

func (s *Store) MarkComplete(ctx context.Context, address string) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_states (address, complete) VALUES ($1, TRUE)
		ON CONFLICT (address) DO UPDATE
		SET complete = TRUE, updated_at = NOW()`, address)
	s.observe("mark_complete", tableStates, start, err)
	if err != nil {
		return fmt.Errorf("failed to mark scan complete: %w", err)
	}
	return nil
}

func (s *Store) MonthDetail(ctx context.Context, address string, month scancache.MonthKey) ([]scancache.TransactionSummary, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT signature, slot, block_time, err
		FROM scan_transactions
		WHERE address = $1 AND month = $2
		ORDER BY id`, address, string(month))
	if err != nil {
		s.observe("month_detail", tableTransactions, start, err)
		return nil, fmt.Errorf("failed to list month transactions: %w", err)
	}
	defer rows.Close()

	out := []scancache.TransactionSummary{}
	for rows.Next() {
		var (
			t       scancache.TransactionSummary
			slot    int64
			errText *string
		)
		if err := rows.Scan(&t.Signature, &slot, &t.BlockTime, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Slot = uint64(slot)
		if errText != nil {
			t.Err = []byte(*errText)
		}
		out = append(out, t)
	}
	err = rows.Err()
	s.observe("month_detail", tableTransactions, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list month transactions: %w", err)
	}
	return out, nil
}

func (s *Store) observe(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}
