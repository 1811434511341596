package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/scanner"
)

// BackfillInput identifies the validator to backfill.
type BackfillInput struct {
	VoteAddress string `json:"vote_address"`
}

// BackfillResult summarises a finished backfill.
type BackfillResult struct {
	VoteAddress  string    `json:"vote_address"`
	Cached       bool      `json:"cached"`
	Batches      int       `json:"batches"`
	Months       int       `json:"months"`
	SuccessCount int       `json:"success_count"`
	TotalCount   int       `json:"total_count"`
	StartedAt    time.Time `json:"started_at"`
	Error        *string   `json:"error,omitempty"`
}

// ScanStatus is the stored scan state of one validator.
type ScanStatus struct {
	Exists       bool   `json:"exists"`
	Complete     bool   `json:"complete"`
	Cursor       string `json:"cursor,omitempty"`
	Months       int    `json:"months"`
	SuccessCount int    `json:"success_count"`
	TotalCount   int    `json:"total_count"`
}

// ScanValidatorResult contains the result of the ScanValidator activity.
type ScanValidatorResult struct {
	Batches int        `json:"batches"`
	Status  ScanStatus `json:"status"`
}

// Runner drives a scan to its terminal event. Both *scanner.Scanner and
// *progress.Hub satisfy it; the hub shares runs with live SSE subscribers.
type Runner interface {
	Run(ctx context.Context, address string, fn func(scanner.Event)) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	runner  Runner
	store   scancache.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(runner Runner, store scancache.Store, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		runner:  runner,
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// GetScanStatus reads the stored state for a validator without touching the
// upstream node.
func (a *Activities) GetScanStatus(ctx context.Context, input BackfillInput) (*ScanStatus, error) {
	start := time.Now()
	status, err := a.status(ctx, input.VoteAddress)
	a.recordDuration("GetScanStatus", start, err)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ScanValidator drives the scanner until the validator's history is fully
// cached. It heartbeats once per event; a retried attempt resumes from the
// stored cursor.
func (a *Activities) ScanValidator(ctx context.Context, input BackfillInput) (*ScanValidatorResult, error) {
	start := time.Now()
	logger := a.logger.With("vote_address", input.VoteAddress)

	result := &ScanValidatorResult{}
	err := a.runner.Run(ctx, input.VoteAddress, func(ev scanner.Event) {
		if ev.Type == scanner.EventBatch {
			result.Batches = ev.BatchNum
		}
		activity.RecordHeartbeat(ctx, result.Batches)
		logger.DebugContext(ctx, "backfill progress",
			"type", ev.Type,
			"batch", ev.BatchNum,
			"months", len(ev.Months),
		)
	})
	if err != nil {
		a.recordDuration("ScanValidator", start, err)
		logger.ErrorContext(ctx, "backfill scan failed", "error", err)
		return nil, fmt.Errorf("failed to scan validator: %w", err)
	}

	status, err := a.status(ctx, input.VoteAddress)
	a.recordDuration("ScanValidator", start, err)
	if err != nil {
		return nil, err
	}
	result.Status = *status

	logger.InfoContext(ctx, "backfill scan finished",
		"batches", result.Batches,
		"months", status.Months,
		"total", status.TotalCount,
	)
	return result, nil
}

func (a *Activities) status(ctx context.Context, address string) (*ScanStatus, error) {
	snap, ok, err := a.store.Snapshot(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan state: %w", err)
	}
	status := &ScanStatus{
		Exists:   ok,
		Complete: snap.Complete,
		Cursor:   snap.Cursor,
		Months:   len(snap.Months),
	}
	for _, m := range snap.Months {
		status.SuccessCount += m.Count
		status.TotalCount += m.Total
	}
	return status, nil
}

func (a *Activities) recordDuration(name string, start time.Time, err error) {
	if a.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordActivityDuration(name, status, time.Since(start).Seconds())
}
