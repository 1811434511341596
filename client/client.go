package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validator is one entry of the validator list.
type Validator struct {
	VotePubkey     string     `json:"votePubkey"`
	NodePubkey     string     `json:"nodePubkey"`
	ActivatedStake uint64     `json:"activatedStake"`
	Commission     uint8      `json:"commission"`
	LastVote       uint64     `json:"lastVote"`
	RootSlot       uint64     `json:"rootSlot"`
	EpochCredits   [][]uint64 `json:"epochCredits"`
	Active         bool       `json:"active"`
	Name           *string    `json:"name"`
	IconURL        *string    `json:"iconUrl"`
	Website        *string    `json:"website"`
	Details        *string    `json:"details"`
}

// MonthSummary aggregates one calendar month of vote transactions.
type MonthSummary struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	Total  int             `json:"total"`
}

// CacheStatus reports what the server has cached for a validator.
type CacheStatus struct {
	Cached bool                    `json:"cached"`
	Months map[string]MonthSummary `json:"months,omitempty"`
	Done   bool                    `json:"done"`
}

// Transaction is a cached signature entry.
type Transaction struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction carried an error.
func (t Transaction) Failed() bool {
	return len(t.Err) > 0 && string(t.Err) != "null"
}

// TransactionDetail is the enriched view of one transaction.
type TransactionDetail struct {
	Signature    string          `json:"signature"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	Instructions []string        `json:"instructions"`
}

// ScanEvent is one progress message of a scan stream.
type ScanEvent struct {
	Type     string                  `json:"type"`
	BatchNum int                     `json:"batchNum,omitempty"`
	Months   map[string]MonthSummary `json:"months"`
	Done     bool                    `json:"done"`
	Message  string                  `json:"message,omitempty"`
}

// Backfill identifies a started backfill workflow.
type Backfill struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Client is the HTTP client for the fogoscan explorer service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new explorer client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Validators lists every validator, highest stake first.
func (c *Client) Validators(ctx context.Context) ([]Validator, error) {
	var out []Validator
	if err := c.getJSON(ctx, "/api/validators", &out); err != nil {
		return nil, err
	}
	c.logger.Debug("validators fetched", "count", len(out))
	return out, nil
}

// Status returns the cached scan state of a validator without scanning.
func (c *Client) Status(ctx context.Context, votePubkey string) (*CacheStatus, error) {
	var out CacheStatus
	if err := c.getJSON(ctx, "/api/tx-cache/"+url.PathEscape(votePubkey), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MonthTransactions returns the cached transactions of one month ("YYYY-MM" or "unknown").
func (c *Client) MonthTransactions(ctx context.Context, votePubkey, month string) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	path := fmt.Sprintf("/api/tx-month/%s/%s", url.PathEscape(votePubkey), url.PathEscape(month))
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// Details fetches fee, amount and instruction summaries for signatures.
func (c *Client) Details(ctx context.Context, signatures []string) ([]TransactionDetail, error) {
	body, err := json.Marshal(map[string][]string{"signatures": signatures})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/tx-details", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out []TransactionDetail
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartBackfill asks the server to scan a validator's history in the background.
func (c *Client) StartBackfill(ctx context.Context, votePubkey string) (*Backfill, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/backfill/"+url.PathEscape(votePubkey), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var out Backfill
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	c.logger.Debug("backfill started", "vote_address", votePubkey, "workflow_id", out.WorkflowID)
	return &out, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Scan opens the scan stream for a validator and calls fn for every event
// until the stream ends or ctx is cancelled. An error event ends the stream
// and is returned as an error.
func (c *Client) Scan(ctx context.Context, votePubkey string, fn func(ScanEvent) error) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tx-scan/"+url.PathEscape(votePubkey), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streams outlive the regular request timeout.
	streaming := *c.httpClient
	streaming.Timeout = 0

	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to scan stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line indicates end of event
		if line == "" {
			if data.Len() == 0 {
				continue
			}
			var ev ScanEvent
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return fmt.Errorf("failed to decode scan event: %w", err)
			}
			data.Reset()

			if ev.Type == "error" {
				return fmt.Errorf("scan failed: %s", ev.Message)
			}
			if err := fn(ev); err != nil {
				return err
			}
			continue
		}

		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("error reading scan stream: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, http.StatusOK, out)
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
