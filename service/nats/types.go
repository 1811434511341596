package nats

import (
	"time"

	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/scanner"
)

// ScanEvent represents a scan progress event published to NATS.
// This is published to the subject "scans.{vote_address}" in JetStream.
type ScanEvent struct {
	VoteAddress string `json:"vote_address"`

	Type     scanner.EventType                             `json:"type"`
	BatchNum int                                           `json:"batch_num,omitempty"`
	Months   map[scancache.MonthKey]scancache.MonthSummary `json:"months,omitempty"`
	Done     bool                                          `json:"done"`
	Message  string                                        `json:"message,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// FromScannerEvent converts a scanner event to a ScanEvent for publishing.
func FromScannerEvent(voteAddress string, ev scanner.Event) *ScanEvent {
	return &ScanEvent{
		VoteAddress: voteAddress,
		Type:        ev.Type,
		BatchNum:    ev.BatchNum,
		Months:      ev.Months,
		Done:        ev.Done,
		Message:     ev.Message,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject an event for voteAddress is published on.
func Subject(voteAddress string) string {
	return "scans." + voteAddress
}
