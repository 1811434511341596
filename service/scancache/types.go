package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// FeePerTx is the flat fee credited for every successful vote transaction
// (5000 lamports).
var FeePerTx = decimal.New(5, -6)

// ErrNotFound is returned by backends when an address has no scan state.
var ErrNotFound = errors.New("scan state not found")

// MonthKey is a calendar month in "YYYY-MM" form, or UnknownMonth.
type MonthKey string

// UnknownMonth buckets transactions without a block time.
const UnknownMonth MonthKey = "unknown"

// MonthKeyFor derives the bucket for a unix block time. Months are UTC.
func MonthKeyFor(blockTime *int64) MonthKey {
	if blockTime == nil {
		return UnknownMonth
	}
	return MonthKey(time.Unix(*blockTime, 0).UTC().Format("2006-01"))
}

// TransactionSummary is the per-signature record kept in a month bucket.
type TransactionSummary struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Succeeded reports whether the transaction carried no error.
func (t TransactionSummary) Succeeded() bool {
	return len(t.Err) == 0 || string(t.Err) == "null"
}

// NormalizeErr maps an absent or JSON null error to nil.
func NormalizeErr(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// Month returns the bucket this transaction belongs to.
func (t TransactionSummary) Month() MonthKey {
	return MonthKeyFor(t.BlockTime)
}

// MonthSummary is the aggregate view of one month bucket. Count is the number
// of successful transactions and Amount the fee they accumulated.
type MonthSummary struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	Total  int             `json:"total"`
}

// NewMonthSummary builds a summary so that Amount == successCount * FeePerTx.
func NewMonthSummary(successCount, total int) MonthSummary {
	return MonthSummary{
		Count:  successCount,
		Amount: FeePerTx.Mul(decimal.NewFromInt(int64(successCount))),
		Total:  total,
	}
}

// MarshalJSON writes Amount as a JSON number.
func (m MonthSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count  int         `json:"count"`
		Amount json.Number `json:"amount"`
		Total  int         `json:"total"`
	}{
		Count:  m.Count,
		Amount: json.Number(m.Amount.String()),
		Total:  m.Total,
	})
}

// Snapshot is a read-only projection of a scan state without transaction lists.
type Snapshot struct {
	Months   map[MonthKey]MonthSummary `json:"months"`
	Cursor   string                    `json:"cursor,omitempty"`
	Complete bool                      `json:"done"`
}

// HasMonths reports whether any bucket has been recorded.
func (s Snapshot) HasMonths() bool {
	return len(s.Months) > 0
}

// SortedMonths returns month keys in chronological order with UnknownMonth last.
func (s Snapshot) SortedMonths() []MonthKey {
	keys := make([]MonthKey, 0, len(s.Months))
	for k := range s.Months {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == UnknownMonth {
			return false
		}
		if keys[j] == UnknownMonth {
			return true
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Store holds per-address scan state. Implementations must be safe for
// concurrent use across addresses.
type Store interface {
	// GetOrCreate returns the state for address, creating an empty one if absent.
	GetOrCreate(ctx context.Context, address string) (Snapshot, error)

	// Snapshot returns the state for address and false if none exists.
	Snapshot(ctx context.Context, address string) (Snapshot, bool, error)

	// Record appends transactions to their month buckets in arrival order.
	// Signatures already recorded for the address are ignored.
	Record(ctx context.Context, address string, txs []TransactionSummary) error

	// AdvanceCursor moves the cursor. It is a no-op once the state is complete.
	AdvanceCursor(ctx context.Context, address, signature string) error

	// MarkComplete flags the state as fully scanned. Idempotent.
	MarkComplete(ctx context.Context, address string) error

	// MonthDetail returns one bucket's transactions, or an empty slice.
	MonthDetail(ctx context.Context, address string, month MonthKey) ([]TransactionSummary, error)
}
