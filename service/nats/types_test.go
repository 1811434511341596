package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/scanner"
)

func TestFromScannerEvent(t *testing.T) {
	snap := scancache.Snapshot{Months: map[scancache.MonthKey]scancache.MonthSummary{
		"2024-01": scancache.NewMonthSummary(2, 3),
	}}
	event := FromScannerEvent("V1", scanner.BatchEvent(4, snap, true))

	assert.Equal(t, "V1", event.VoteAddress)
	assert.Equal(t, scanner.EventBatch, event.Type)
	assert.Equal(t, 4, event.BatchNum)
	assert.True(t, event.Done)
	assert.False(t, event.PublishedAt.IsZero())

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"2024-01":{"count":2,"amount":0.00001,"total":3}`)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "scans.V1", Subject("V1"))
}

func TestMockPublisher(t *testing.T) {
	ctx := context.Background()
	mock := NewMockPublisher()

	require.NoError(t, mock.PublishScanEvent(ctx, &ScanEvent{VoteAddress: "A"}))
	require.NoError(t, mock.PublishScanEvent(ctx, &ScanEvent{VoteAddress: "B"}))
	assert.Len(t, mock.GetPublishedEvents(), 2)
	assert.Len(t, mock.GetPublishedEventsForAddress("A"), 1)

	mock.SetPublishError(errors.New("nats down"))
	assert.Error(t, mock.PublishScanEvent(ctx, &ScanEvent{VoteAddress: "A"}))

	require.NoError(t, mock.Close())
	assert.True(t, mock.IsClosed())
}
