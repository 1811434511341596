// Package scancachetest holds behavioural tests shared by every scancache.Store backend.
package scancachetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/fogoscan/service/scancache"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) scancache.Store

// Tx builds a transaction summary in the given UTC month. A non-empty errMsg
// marks the transaction as failed.
func Tx(sig string, year int, month time.Month, errMsg string) scancache.TransactionSummary {
	bt := time.Date(year, month, 15, 12, 0, 0, 0, time.UTC).Unix()
	tx := scancache.TransactionSummary{
		Signature: sig,
		Slot:      uint64(bt),
		BlockTime: &bt,
	}
	if errMsg != "" {
		raw, _ := json.Marshal(map[string]string{"message": errMsg})
		tx.Err = raw
	}
	return tx
}

// RunStoreTests exercises the Store contract against a backend.
func RunStoreTests(t *testing.T, newStore Factory) {
	t.Run("GetOrCreateIsLazyAndEmpty", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		_, ok, err := store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		assert.False(t, ok)

		snap, err := store.GetOrCreate(ctx, "V1")
		require.NoError(t, err)
		assert.Empty(t, snap.Months)
		assert.False(t, snap.Complete)
		assert.Empty(t, snap.Cursor)

		_, ok, err = store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("RecordAggregatesByMonth", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		err := store.Record(ctx, "V1", []scancache.TransactionSummary{
			Tx("a", 2024, time.February, ""),
			Tx("b", 2024, time.February, ""),
			Tx("c", 2024, time.January, ""),
			Tx("d", 2024, time.January, "custom program error"),
			{Signature: "e"},
		})
		require.NoError(t, err)

		snap, ok, err := store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, snap.Months, 3)

		feb := snap.Months["2024-02"]
		assert.Equal(t, 2, feb.Count)
		assert.Equal(t, 2, feb.Total)
		assert.True(t, decimal.RequireFromString("0.00001").Equal(feb.Amount))

		jan := snap.Months["2024-01"]
		assert.Equal(t, 1, jan.Count)
		assert.Equal(t, 2, jan.Total)
		assert.True(t, scancache.FeePerTx.Equal(jan.Amount))

		unknown := snap.Months[scancache.UnknownMonth]
		assert.Equal(t, 1, unknown.Count)

		assert.Equal(t, []scancache.MonthKey{"2024-01", "2024-02", scancache.UnknownMonth}, snap.SortedMonths())
	})

	t.Run("FeeMatchesSuccessCountAcrossRecords", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for batch := 0; batch < 5; batch++ {
			var txs []scancache.TransactionSummary
			for i := 0; i < 7; i++ {
				errMsg := ""
				if i%3 == 0 {
					errMsg = "failed"
				}
				txs = append(txs, Tx(fmt.Sprintf("sig-%d-%d", batch, i), 2024, time.Month(1+i%3), errMsg))
			}
			require.NoError(t, store.Record(ctx, "V1", txs))

			snap, _, err := store.Snapshot(ctx, "V1")
			require.NoError(t, err)
			for month, m := range snap.Months {
				expected := scancache.FeePerTx.Mul(decimal.NewFromInt(int64(m.Count)))
				assert.True(t, expected.Equal(m.Amount), "month %s", month)
				assert.LessOrEqual(t, m.Count, m.Total, "month %s", month)
			}
		}
	})

	t.Run("MonthDetailPreservesArrivalOrder", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.Record(ctx, "V1", []scancache.TransactionSummary{
			Tx("z", 2024, time.March, ""),
			Tx("y", 2024, time.March, "boom"),
		}))
		require.NoError(t, store.Record(ctx, "V1", []scancache.TransactionSummary{
			Tx("x", 2024, time.March, ""),
		}))

		txs, err := store.MonthDetail(ctx, "V1", "2024-03")
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, "z", txs[0].Signature)
		assert.Equal(t, "y", txs[1].Signature)
		assert.Equal(t, "x", txs[2].Signature)
		assert.True(t, txs[0].Succeeded())
		assert.Nil(t, txs[0].Err)
		assert.False(t, txs[1].Succeeded())

		empty, err := store.MonthDetail(ctx, "V1", "1999-01")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		none, err := store.MonthDetail(ctx, "missing", "2024-03")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("RecordIgnoresDuplicateSignatures", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		page := []scancache.TransactionSummary{
			Tx("a", 2024, time.May, ""),
			Tx("b", 2024, time.May, ""),
		}
		require.NoError(t, store.Record(ctx, "V1", page))
		require.NoError(t, store.Record(ctx, "V1", page))

		snap, _, err := store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Months["2024-05"].Count)
		assert.Equal(t, 2, snap.Months["2024-05"].Total)
	})

	t.Run("CursorFreezesAfterComplete", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		require.NoError(t, store.AdvanceCursor(ctx, "V1", "sig-1"))
		snap, _, err := store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		assert.Equal(t, "sig-1", snap.Cursor)

		require.NoError(t, store.MarkComplete(ctx, "V1"))
		require.NoError(t, store.MarkComplete(ctx, "V1"))
		require.NoError(t, store.AdvanceCursor(ctx, "V1", "sig-2"))

		snap, _, err = store.Snapshot(ctx, "V1")
		require.NoError(t, err)
		assert.True(t, snap.Complete)
		assert.Equal(t, "sig-1", snap.Cursor)

		snap, err = store.GetOrCreate(ctx, "V1")
		require.NoError(t, err)
		assert.True(t, snap.Complete)
	})

	t.Run("AddressesAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		var wg sync.WaitGroup
		for _, addr := range []string{"V1", "V2", "V3"} {
			wg.Add(1)
			go func(addr string) {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					err := store.Record(ctx, addr, []scancache.TransactionSummary{
						Tx(fmt.Sprintf("%s-%d", addr, i), 2024, time.June, ""),
					})
					assert.NoError(t, err)
				}
			}(addr)
		}
		wg.Wait()

		for _, addr := range []string{"V1", "V2", "V3"} {
			snap, ok, err := store.Snapshot(ctx, addr)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 20, snap.Months["2024-06"].Count, addr)
		}
	})
}
