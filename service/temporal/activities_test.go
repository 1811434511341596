package temporal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/scancache/scancachetest"
	"github.com/brojonat/fogoscan/service/scanner"
)

// fakeRunner records transactions into the store and replays events.
type fakeRunner struct {
	store  scancache.Store
	txs    []scancache.TransactionSummary
	events []scanner.Event
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, address string, fn func(scanner.Event)) error {
	if err := f.store.Record(ctx, address, f.txs); err != nil {
		return err
	}
	for _, ev := range f.events {
		fn(ev)
	}
	if f.err != nil {
		return f.err
	}
	return f.store.MarkComplete(ctx, address)
}

func newTestActivities(runner Runner, store scancache.Store) *Activities {
	return NewActivities(runner, store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetScanStatus(t *testing.T) {
	ctx := context.Background()
	store := scancache.NewMemoryStore()
	require.NoError(t, store.Record(ctx, "V1", []scancache.TransactionSummary{
		scancachetest.Tx("a", 2024, time.January, ""),
		scancachetest.Tx("b", 2024, time.February, "failed"),
	}))
	require.NoError(t, store.AdvanceCursor(ctx, "V1", "b"))

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	acts := newTestActivities(nil, store)
	env.RegisterActivity(acts.GetScanStatus)

	val, err := env.ExecuteActivity(acts.GetScanStatus, BackfillInput{VoteAddress: "V1"})
	require.NoError(t, err)
	var status ScanStatus
	require.NoError(t, val.Get(&status))

	assert.True(t, status.Exists)
	assert.False(t, status.Complete)
	assert.Equal(t, "b", status.Cursor)
	assert.Equal(t, 2, status.Months)
	assert.Equal(t, 1, status.SuccessCount)
	assert.Equal(t, 2, status.TotalCount)

	val, err = env.ExecuteActivity(acts.GetScanStatus, BackfillInput{VoteAddress: "missing"})
	require.NoError(t, err)
	require.NoError(t, val.Get(&status))
	assert.False(t, status.Exists)
}

func TestScanValidator(t *testing.T) {
	store := scancache.NewMemoryStore()
	runner := &fakeRunner{
		store: store,
		txs: []scancache.TransactionSummary{
			scancachetest.Tx("a", 2024, time.March, ""),
			scancachetest.Tx("b", 2024, time.April, ""),
		},
		events: []scanner.Event{
			{Type: scanner.EventBatch, BatchNum: 1},
			{Type: scanner.EventBatch, BatchNum: 2},
			{Type: scanner.EventDone, Done: true},
		},
	}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	acts := newTestActivities(runner, store)
	env.RegisterActivity(acts.ScanValidator)

	val, err := env.ExecuteActivity(acts.ScanValidator, BackfillInput{VoteAddress: "V1"})
	require.NoError(t, err)

	var result ScanValidatorResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, 2, result.Batches)
	assert.True(t, result.Status.Complete)
	assert.Equal(t, 2, result.Status.Months)
	assert.Equal(t, 2, result.Status.SuccessCount)
}

func TestScanValidator_RunnerError(t *testing.T) {
	store := scancache.NewMemoryStore()
	runner := &fakeRunner{store: store, err: errors.New("rate limited")}

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	acts := newTestActivities(runner, store)
	env.RegisterActivity(acts.ScanValidator)

	_, err := env.ExecuteActivity(acts.ScanValidator, BackfillInput{VoteAddress: "V1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
