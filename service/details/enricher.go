package details

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/shopspring/decimal"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/solana"
)

// BatchSize is how many transactions are fetched in parallel. Batches run
// one after another.
const BatchSize = 20

// lamportsExp rescales lamports to whole tokens.
const lamportsExp = -9

// Fetcher fetches a single transaction in jsonParsed form.
type Fetcher interface {
	GetParsedTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error)
}

// Summary is the coarse per-transaction view returned to clients.
type Summary struct {
	Signature    string          `json:"signature"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Instructions []string        `json:"instructions"`
}

// MarshalJSON writes Amount and Fee as JSON numbers.
func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Signature    string      `json:"signature"`
		Amount       json.Number `json:"amount"`
		Fee          json.Number `json:"fee"`
		Instructions []string    `json:"instructions"`
	}{
		Signature:    s.Signature,
		Amount:       json.Number(s.Amount.String()),
		Fee:          json.Number(s.Fee.String()),
		Instructions: s.Instructions,
	})
}

func zeroSummary(signature string) Summary {
	return Summary{
		Signature:    signature,
		Amount:       decimal.Zero,
		Fee:          decimal.Zero,
		Instructions: []string{},
	}
}

// Enricher fetches and summarises transactions in bounded batches.
type Enricher struct {
	fetcher Fetcher
	pool    pond.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Enricher backed by a pool of BatchSize workers.
// If metrics is nil, no metrics will be recorded.
func New(fetcher Fetcher, m *metrics.Metrics, logger *slog.Logger) *Enricher {
	return &Enricher{
		fetcher: fetcher,
		pool:    pond.NewPool(BatchSize),
		metrics: m,
		logger:  logger,
	}
}

// Close stops the worker pool.
func (e *Enricher) Close() {
	e.pool.StopAndWait()
}

// Enrich returns one summary per signature, in input order. A signature that
// cannot be fetched yields a zero summary. The only error is ctx ending.
func (e *Enricher) Enrich(ctx context.Context, signatures []string) ([]Summary, error) {
	out := make([]Summary, len(signatures))

	for start := 0; start < len(signatures); start += BatchSize {
		end := min(start+BatchSize, len(signatures))
		if err := e.runBatch(ctx, signatures, start, end, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Enricher) runBatch(ctx context.Context, signatures []string, start, end int, out []Summary) error {
	began := time.Now()
	group := e.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := start; i < end; i++ {
		idx := i
		group.Submit(func() {
			out[idx] = e.fetchOne(groupCtx, signatures[idx])
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		e.logger.WarnContext(ctx, "detail batch encountered error", "error", err)
	}
	if e.metrics != nil {
		e.metrics.RecordDetailBatch(time.Since(began).Seconds())
	}
	return ctx.Err()
}

func (e *Enricher) fetchOne(ctx context.Context, signature string) Summary {
	tx, err := e.fetcher.GetParsedTransaction(ctx, signature)
	if err != nil {
		e.logger.DebugContext(ctx, "transaction detail unavailable",
			"signature", signature,
			"error", err,
		)
		e.record("error")
		return zeroSummary(signature)
	}
	e.record("success")
	return Summarize(signature, tx)
}

func (e *Enricher) record(status string) {
	if e.metrics != nil {
		e.metrics.RecordDetailFetch(status)
	}
}

// Summarize derives fee, moved amount and instruction labels from a parsed
// transaction. A nil transaction yields a zero summary.
func Summarize(signature string, tx *solana.ParsedTransaction) Summary {
	s := zeroSummary(signature)
	if tx == nil {
		return s
	}

	if tx.Meta != nil {
		s.Fee = decimal.New(int64(tx.Meta.Fee), lamportsExp)

		var moved int64
		for j, pre := range tx.Meta.PreBalances {
			var post uint64
			if j < len(tx.Meta.PostBalances) {
				post = tx.Meta.PostBalances[j]
			}
			if diff := int64(post) - int64(pre); diff > 0 {
				moved += diff
			}
		}
		s.Amount = decimal.New(moved, lamportsExp)
	}
	if s.Amount.IsZero() {
		s.Amount = s.Fee
	}

	for _, ix := range tx.Transaction.Message.Instructions {
		s.Instructions = append(s.Instructions, instructionLabel(ix))
	}
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			for _, ix := range inner.Instructions {
				if t := ix.ParsedType(); t != "" && !slices.Contains(s.Instructions, t) {
					s.Instructions = append(s.Instructions, t)
				}
			}
		}
	}
	return s
}

func instructionLabel(ix solana.ParsedInstruction) string {
	if t := ix.ParsedType(); t != "" {
		return t
	}
	if ix.Program != "" {
		return ix.Program
	}
	if label, ok := solana.ProgramLabel(ix.ProgramID); ok {
		return label
	}
	pid := ix.ProgramID
	if len(pid) > 8 {
		pid = pid[:8]
	}
	return pid + "..."
}
