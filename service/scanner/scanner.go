package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/solana"
)

// PageSize is the getSignaturesForAddress page limit. A shorter page means
// history is exhausted.
const PageSize = 1000

// Fetcher lists signatures for an address, newest first, strictly older than before.
type Fetcher interface {
	GetSignaturesPage(ctx context.Context, address, before string, limit int) ([]solana.SignatureInfo, error)
}

// Scanner walks an address's signature history into a scancache.Store.
type Scanner struct {
	store   scancache.Store
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Scanner. If metrics is nil, no metrics will be recorded.
func New(store scancache.Store, fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) *Scanner {
	return &Scanner{
		store:   store,
		fetcher: fetcher,
		metrics: m,
		logger:  logger,
	}
}

// Store returns the store the scanner writes to.
func (s *Scanner) Store() scancache.Store {
	return s.store
}

// Scan starts walking history for address and returns the progress events.
// The channel is closed after a terminal event, or without one if ctx is
// canceled. Upstream calls are strictly sequential.
func (s *Scanner) Scan(ctx context.Context, address string) <-chan Event {
	out := make(chan Event, 1)
	go s.run(ctx, address, out)
	return out
}

// Run drives a scan to its end, passing every event to fn. It returns an
// error for an error event or a canceled context.
func (s *Scanner) Run(ctx context.Context, address string, fn func(Event)) error {
	var last Event
	for ev := range s.Scan(ctx, address) {
		if fn != nil {
			fn(ev)
		}
		last = ev
	}
	if last.Type == EventError {
		return errors.New(last.Message)
	}
	if !last.IsTerminal() {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("scan of %s ended without a terminal event", address)
	}
	return nil
}

func (s *Scanner) run(ctx context.Context, address string, out chan<- Event) {
	defer close(out)
	logger := s.logger.With("vote_address", address)

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		if ctx.Err() != nil {
			s.recordRun("canceled")
			return
		}
		logger.ErrorContext(ctx, "scan failed", "error", err)
		s.recordRun("error")
		emit(ErrorEvent(err))
	}

	snap, err := s.store.GetOrCreate(ctx, address)
	if err != nil {
		fail(fmt.Errorf("failed to load scan state: %w", err))
		return
	}

	if snap.Complete {
		logger.DebugContext(ctx, "scan already complete, serving cache")
		s.recordRun("cached")
		emit(CachedEvent(snap))
		return
	}
	if snap.HasMonths() {
		if !emit(CachedEvent(snap)) {
			return
		}
	}

	if s.metrics != nil {
		s.metrics.RecordActiveScanChange(1)
		defer s.metrics.RecordActiveScanChange(-1)
	}

	cursor := snap.Cursor
	logger.InfoContext(ctx, "scanning signature history", "cursor", cursor)

	for batchNum := 1; ; batchNum++ {
		page, err := s.fetcher.GetSignaturesPage(ctx, address, cursor, PageSize)
		if err != nil {
			fail(err)
			return
		}

		if len(page) == 0 {
			s.finish(ctx, logger, address, emit, fail)
			return
		}

		if err := s.store.Record(ctx, address, toSummaries(page)); err != nil {
			fail(fmt.Errorf("failed to record page %d: %w", batchNum, err))
			return
		}
		cursor = page[len(page)-1].Signature
		if err := s.store.AdvanceCursor(ctx, address, cursor); err != nil {
			fail(fmt.Errorf("failed to advance cursor: %w", err))
			return
		}
		if s.metrics != nil {
			s.metrics.RecordScanPage(address, len(page))
		}

		done := len(page) < PageSize
		snap, _, err := s.store.Snapshot(ctx, address)
		if err != nil {
			fail(fmt.Errorf("failed to snapshot scan state: %w", err))
			return
		}

		logger.DebugContext(ctx, "recorded signature page",
			"batch", batchNum,
			"count", len(page),
			"cursor", cursor,
		)
		if !emit(BatchEvent(batchNum, snap, done)) {
			return
		}

		if done {
			s.finish(ctx, logger, address, emit, fail)
			return
		}
	}
}

func (s *Scanner) finish(ctx context.Context, logger *slog.Logger, address string, emit func(Event) bool, fail func(error)) {
	if err := s.store.MarkComplete(ctx, address); err != nil {
		fail(fmt.Errorf("failed to mark scan complete: %w", err))
		return
	}
	snap, _, err := s.store.Snapshot(ctx, address)
	if err != nil {
		fail(fmt.Errorf("failed to snapshot scan state: %w", err))
		return
	}
	logger.InfoContext(ctx, "scan complete", "months", len(snap.Months))
	s.recordRun("done")
	emit(DoneEvent(snap))
}

func (s *Scanner) recordRun(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScanRun(outcome)
	}
}

func toSummaries(page []solana.SignatureInfo) []scancache.TransactionSummary {
	txs := make([]scancache.TransactionSummary, 0, len(page))
	for _, sig := range page {
		txs = append(txs, scancache.TransactionSummary{
			Signature: sig.Signature,
			Slot:      sig.Slot,
			BlockTime: sig.BlockTime,
			Err:       scancache.NormalizeErr(sig.Err),
		})
	}
	return txs
}
