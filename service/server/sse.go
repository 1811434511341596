package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/scanner"
)

// handleScanStream streams scan progress for a validator as Server-Sent
// Events. Frames are data-only; the event kind is the "type" field of the
// JSON payload. Disconnecting detaches the client; the scan keeps running.
// GET /api/tx-scan/{votePubkey}
func handleScanStream(scans ScanSubscriber, keepaliveInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("votePubkey")
		if err := validateAddress(address); err != nil {
			logger.DebugContext(r.Context(), "invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		rc := http.NewResponseController(w)
		// Scans can outlast the server-wide write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		// Set SSE headers
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()

		logger.DebugContext(r.Context(), "SSE client connected",
			"vote_address", address,
			"remote_addr", r.RemoteAddr,
		)

		sub, err := scans.Subscribe(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to subscribe to scan",
				"vote_address", address,
				"error", err,
			)
			writeEvent(w, rc, scanner.ErrorEvent(err))
			return
		}
		defer sub.Close()

		if m != nil {
			m.RecordSSEConnectionChange(address, 1)
			defer m.RecordSSEConnectionChange(address, -1)
		}

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				// Send keepalive comment to prevent timeout
				fmt.Fprintf(w, ": keepalive\n\n")
				_ = rc.Flush()

			case ev, ok := <-sub.Events:
				if !ok {
					logger.DebugContext(r.Context(), "scan stream finished", "vote_address", address)
					return
				}
				if err := writeEvent(w, rc, ev); err != nil {
					logger.DebugContext(r.Context(), "failed to write scan event",
						"vote_address", address,
						"error", err,
					)
					return
				}
				if m != nil {
					m.RecordSSEEventSent(address, string(ev.Type))
				}

			case <-r.Context().Done():
				// Client disconnected
				logger.DebugContext(r.Context(), "SSE client disconnected",
					"vote_address", address,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev scanner.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
