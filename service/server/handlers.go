package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/mr-tron/base58"

	"github.com/brojonat/fogoscan/service/details"
	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/brojonat/fogoscan/service/progress"
	"github.com/brojonat/fogoscan/service/scancache"
	"github.com/brojonat/fogoscan/service/solana"
	"github.com/brojonat/fogoscan/service/temporal"
	"github.com/brojonat/fogoscan/service/validators"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - roughly 10k signatures
	maxAddressLength   = 100     // addresses are at most 44 chars, give buffer
)

var (
	// Valid address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[` + regexp.QuoteMeta(solana.Alphabet) + `]+$`)
)

// ValidatorLister lists validators with their display metadata.
type ValidatorLister interface {
	List(ctx context.Context) ([]validators.EnrichedValidator, error)
}

// ScanSubscriber joins or starts the scan for an address.
type ScanSubscriber interface {
	Subscribe(ctx context.Context, address string) (*progress.Subscription, error)
}

// DetailEnricher summarises transactions by signature.
type DetailEnricher interface {
	Enrich(ctx context.Context, signatures []string) ([]details.Summary, error)
}

// BackfillStarter starts a background backfill for a validator.
type BackfillStarter interface {
	StartBackfill(ctx context.Context, voteAddress string) (*temporal.Backfill, error)
}

// handleListValidators returns every validator, sorted by stake, with metadata.
// GET /api/validators
func handleListValidators(lister ValidatorLister, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := lister.List(r.Context())
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list validators", "error", err)
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "validators listed", "count", len(list))
		writeJSON(w, list, http.StatusOK)
	})
}

type cacheStatusResponse struct {
	Cached bool                                          `json:"cached"`
	Months map[scancache.MonthKey]scancache.MonthSummary `json:"months,omitempty"`
	Done   *bool                                         `json:"done,omitempty"`
}

// handleGetCacheStatus reports what is cached for a validator without scanning.
// GET /api/tx-cache/{votePubkey}
func handleGetCacheStatus(store scancache.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("votePubkey")
		if err := validateAddress(address); err != nil {
			logger.DebugContext(r.Context(), "invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap, ok, err := store.Snapshot(r.Context(), address)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to read scan state", "vote_address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			writeJSON(w, cacheStatusResponse{Cached: false}, http.StatusOK)
			return
		}

		done := snap.Complete
		writeJSON(w, cacheStatusResponse{
			Cached: true,
			Months: ensureMonths(snap.Months),
			Done:   &done,
		}, http.StatusOK)
	})
}

type monthTransactionsResponse struct {
	Transactions []scancache.TransactionSummary `json:"transactions"`
}

// handleGetMonthTransactions returns the cached transactions of one month.
// GET /api/tx-month/{votePubkey}/{monthKey}
func handleGetMonthTransactions(store scancache.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("votePubkey")
		month := scancache.MonthKey(r.PathValue("monthKey"))

		if err := validateAddress(address); err != nil {
			logger.DebugContext(r.Context(), "invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		txs, err := store.MonthDetail(r.Context(), address, month)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to read month transactions",
				"vote_address", address,
				"month", month,
				"error", err,
			)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, monthTransactionsResponse{Transactions: txs}, http.StatusOK)
	})
}

type detailsRequest struct {
	Signatures []string `json:"signatures"`
}

// handleGetTransactionDetails fetches fee, amount and instruction summaries.
// POST /api/tx-details
func handleGetTransactionDetails(enricher DetailEnricher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req detailsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			logger.DebugContext(r.Context(), "invalid request body", "error", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if len(req.Signatures) == 0 {
			writeJSON(w, []details.Summary{}, http.StatusOK)
			return
		}

		summaries, err := enricher.Enrich(r.Context(), req.Signatures)
		if err != nil {
			logger.WarnContext(r.Context(), "detail enrichment aborted",
				"signatures", len(req.Signatures),
				"error", err,
			)
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		logger.DebugContext(r.Context(), "transaction details fetched", "count", len(summaries))
		writeJSON(w, summaries, http.StatusOK)
	})
}

// handleStartBackfill starts a background scan of a validator's full history.
// POST /api/backfill/{votePubkey}
func handleStartBackfill(starter BackfillStarter, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("votePubkey")
		if err := validateAddress(address); err != nil {
			logger.DebugContext(r.Context(), "invalid address", "address", address, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if starter == nil {
			writeError(w, "backfill is not enabled", http.StatusServiceUnavailable)
			return
		}

		backfill, err := starter.StartBackfill(r.Context(), address)
		if err != nil {
			recordBackfill(m, "error")
			logger.ErrorContext(r.Context(), "failed to start backfill", "vote_address", address, "error", err)
			writeError(w, "failed to start backfill", http.StatusInternalServerError)
			return
		}
		recordBackfill(m, "started")

		logger.InfoContext(r.Context(), "backfill started",
			"vote_address", address,
			"workflow_id", backfill.WorkflowID,
		)
		writeJSON(w, backfill, http.StatusAccepted)
	})
}

func recordBackfill(m *metrics.Metrics, status string) {
	if m != nil {
		m.RecordBackfillStart(status)
	}
}

func ensureMonths(months map[scancache.MonthKey]scancache.MonthSummary) map[scancache.MonthKey]scancache.MonthSummary {
	if months == nil {
		return map[scancache.MonthKey]scancache.MonthSummary{}
	}
	return months
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress validates a vote account address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	raw, err := base58.Decode(address)
	if err != nil || len(raw) != solana.IdentitySize {
		return errorf("invalid address: must decode to %d bytes", solana.IdentitySize)
	}

	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
