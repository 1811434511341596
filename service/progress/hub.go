package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"

	natspkg "github.com/brojonat/fogoscan/service/nats"
	"github.com/brojonat/fogoscan/service/scanner"
)

// DefaultBuffer is the per-subscriber event buffer. When a slow subscriber
// falls behind, its oldest undelivered event is dropped; every event carries
// a full month snapshot so the newest one supersedes the rest.
const DefaultBuffer = 32

// Hub runs at most one scan per address and fans its events out to every
// subscriber. Scans run on the hub's own context, so a subscriber leaving
// never stops a scan.
type Hub struct {
	scanner   *scanner.Scanner
	publisher natspkg.Publisher
	buffer    int
	logger    *slog.Logger

	runs   *xsync.Map[string, *run]
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type run struct {
	mu       sync.Mutex
	subs     map[*subscriber]struct{}
	finished bool
}

type subscriber struct {
	ch     chan scanner.Event
	closed bool
}

// Subscription is one consumer's view of a scan.
type Subscription struct {
	// Events is closed after the terminal event, or when the hub shuts down.
	Events <-chan scanner.Event

	close func()
}

// Close detaches the subscription. The scan itself keeps running.
func (s *Subscription) Close() {
	s.close()
}

// NewHub creates a Hub. The publisher is optional; when set, every event is
// mirrored to NATS.
func NewHub(s *scanner.Scanner, publisher natspkg.Publisher, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		scanner:   s,
		publisher: publisher,
		buffer:    DefaultBuffer,
		logger:    logger,
		runs:      xsync.NewMap[string, *run](),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Subscribe joins the scan for address, starting one if none is running.
// A joiner receives a cached snapshot first and then live events.
func (h *Hub) Subscribe(ctx context.Context, address string) (*Subscription, error) {
	snap, ok, err := h.scanner.Store().Snapshot(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan state: %w", err)
	}
	if ok && snap.Complete {
		ch := make(chan scanner.Event, 1)
		ch <- scanner.CachedEvent(snap)
		close(ch)
		return &Subscription{Events: ch, close: func() {}}, nil
	}

	for {
		sub := &subscriber{ch: make(chan scanner.Event, h.buffer)}
		fresh := &run{subs: map[*subscriber]struct{}{sub: {}}}

		r, loaded := h.runs.LoadOrStore(address, fresh)
		if !loaded {
			h.logger.DebugContext(ctx, "starting scan run", "vote_address", address)
			h.wg.Add(1)
			go h.drive(address, r)
			return h.subscription(r, sub), nil
		}

		joined, err := h.join(ctx, address, r, sub)
		if err != nil {
			return nil, err
		}
		if joined {
			h.logger.DebugContext(ctx, "joined running scan", "vote_address", address)
			return h.subscription(r, sub), nil
		}
		// The run finished between lookup and join; start over.
	}
}

// join attaches sub to a running scan and queues a replay of the current
// snapshot ahead of any live event.
func (h *Hub) join(ctx context.Context, address string, r *run, sub *subscriber) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return false, nil
	}

	snap, _, err := h.scanner.Store().Snapshot(ctx, address)
	if err != nil {
		return false, fmt.Errorf("failed to read scan state: %w", err)
	}
	sub.ch <- scanner.CachedEvent(snap)
	r.subs[sub] = struct{}{}
	return true, nil
}

func (h *Hub) subscription(r *run, sub *subscriber) *Subscription {
	return &Subscription{
		Events: sub.ch,
		close: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if !sub.closed {
				sub.closed = true
				delete(r.subs, sub)
				close(sub.ch)
			}
		},
	}
}

func (h *Hub) drive(address string, r *run) {
	defer h.wg.Done()

	for ev := range h.scanner.Scan(h.ctx, address) {
		r.broadcast(ev)
		h.mirror(address, ev)
	}

	h.runs.Delete(address)

	r.mu.Lock()
	r.finished = true
	for sub := range r.subs {
		sub.closed = true
		close(sub.ch)
	}
	r.subs = nil
	r.mu.Unlock()
}

func (r *run) broadcast(ev scanner.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Full: drop the oldest queued event to make room.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *Hub) mirror(address string, ev scanner.Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishScanEvent(h.ctx, natspkg.FromScannerEvent(address, ev)); err != nil {
		h.logger.Warn("failed to mirror scan event to NATS",
			"vote_address", address,
			"type", ev.Type,
			"error", err,
		)
	}
}

// Run subscribes to the scan for address and calls fn for every event until
// the terminal one. It returns the scan's error, if any. Cancelling ctx
// detaches the caller without stopping the scan.
func (h *Hub) Run(ctx context.Context, address string, fn func(scanner.Event)) error {
	sub, err := h.Subscribe(ctx, address)
	if err != nil {
		return err
	}
	defer sub.Close()

	var last scanner.Event
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.Events:
			if !ok {
				if last.Type == scanner.EventError {
					return errors.New(last.Message)
				}
				if !last.IsTerminal() {
					return fmt.Errorf("scan of %s stopped before completing", address)
				}
				return nil
			}
			if fn != nil {
				fn(ev)
			}
			last = ev
		}
	}
}

// Active reports whether a scan for address is in flight.
func (h *Hub) Active(address string) bool {
	_, ok := h.runs.Load(address)
	return ok
}

// Close stops every running scan and waits for them to exit.
func (h *Hub) Close() {
	h.cancel()
	h.wg.Wait()
}
