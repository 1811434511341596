package scanner

import (
	"github.com/brojonat/fogoscan/service/scancache"
)

// EventType discriminates scan progress events on the wire.
type EventType string

const (
	EventCached EventType = "cached"
	EventBatch  EventType = "batch"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is one scan progress message. Months is the aggregate snapshot at the
// time the event was produced.
type Event struct {
	Type     EventType                                     `json:"type"`
	BatchNum int                                           `json:"batchNum,omitempty"`
	Months   map[scancache.MonthKey]scancache.MonthSummary `json:"months"`
	Done     bool                                          `json:"done"`
	Message  string                                        `json:"message,omitempty"`
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventDone, EventError:
		return true
	case EventCached:
		return e.Done
	}
	return false
}

func CachedEvent(snap scancache.Snapshot) Event {
	return Event{Type: EventCached, Months: snap.Months, Done: snap.Complete}
}

func BatchEvent(batchNum int, snap scancache.Snapshot, done bool) Event {
	return Event{Type: EventBatch, BatchNum: batchNum, Months: snap.Months, Done: done}
}

func DoneEvent(snap scancache.Snapshot) Event {
	return Event{Type: EventDone, Months: snap.Months, Done: true}
}

func ErrorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}
