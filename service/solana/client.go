package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/fogoscan/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrTransactionNotFound is returned when the node has no record of a signature.
var ErrTransactionNotFound = errors.New("transaction not found")

// RPCClient is an interface for the RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	// Call performs a raw JSON-RPC request and decodes the result into out.
	Call(ctx context.Context, out interface{}, method string, params []interface{}) error
}

// Client wraps the RPC client with domain-specific operations for
// validators and vote-account history.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "fogo-mainnet")
}

// NewClient creates a new Client.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// GetSignaturesPage returns up to limit signatures for address, newest first,
// strictly older than before. An empty before starts from the newest signature.
func (c *Client) GetSignaturesPage(ctx context.Context, address, before string, limit int) ([]SignatureInfo, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}

	opts := &rpc.GetSignaturesForAddressOpts{
		Limit: &limit,
	}
	if before != "" {
		sig, err := solana.SignatureFromBase58(before)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", before, err)
		}
		opts.Before = sig
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"address", address,
		"limit", limit,
		"before", before,
	)

	var signatures []*rpc.TransactionSignature
	err = c.observe(ctx, "getSignaturesForAddress", func() error {
		var callErr error
		signatures, callErr = c.rpc.GetSignaturesForAddress(ctx, pubkey, opts)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCSignaturesPerCall(c.endpoint, float64(len(signatures)))
	}

	out := make([]SignatureInfo, 0, len(signatures))
	for _, sig := range signatures {
		out = append(out, signatureToDomain(sig))
	}
	return out, nil
}

// GetVoteAccounts returns the current and delinquent vote accounts.
func (c *Client) GetVoteAccounts(ctx context.Context) (*VoteAccounts, error) {
	var out VoteAccounts
	err := c.observe(ctx, "getVoteAccounts", func() error {
		return c.rpc.Call(ctx, &out, "getVoteAccounts", nil)
	})
	if err != nil {
		return nil, fmt.Errorf("getVoteAccounts: %w", err)
	}
	return &out, nil
}

// GetConfigAccounts returns every account owned by the Config program with
// its data decoded from base64.
func (c *Client) GetConfigAccounts(ctx context.Context) ([]ProgramAccount, error) {
	params := []interface{}{
		ConfigProgramID.String(),
		map[string]interface{}{"encoding": "base64"},
	}

	var raw []programAccountResult
	err := c.observe(ctx, "getProgramAccounts", func() error {
		return c.rpc.Call(ctx, &raw, "getProgramAccounts", params)
	})
	if err != nil {
		return nil, fmt.Errorf("getProgramAccounts: %w", err)
	}

	accounts := make([]ProgramAccount, 0, len(raw))
	for _, r := range raw {
		if len(r.Account.Data) == 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(r.Account.Data[0])
		if err != nil {
			c.logger.DebugContext(ctx, "skipping config account with bad base64",
				"pubkey", r.Pubkey,
				"error", err,
			)
			continue
		}
		accounts = append(accounts, ProgramAccount{Pubkey: r.Pubkey, Data: data})
	}
	return accounts, nil
}

// GetParsedTransaction fetches a transaction in jsonParsed form.
func (c *Client) GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var out *ParsedTransaction
	err := c.observe(ctx, "getTransaction", func() error {
		return c.rpc.Call(ctx, &out, "getTransaction", params)
	})
	if err != nil {
		return nil, fmt.Errorf("getTransaction %s: %w", signature, err)
	}
	if out == nil {
		return nil, ErrTransactionNotFound
	}
	return out, nil
}

// observe runs fn and records the call in metrics.
func (c *Client) observe(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
		c.logger.WarnContext(ctx, "rpc call failed",
			"method", method,
			"error", err,
		)
	}
	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, status, c.endpoint, duration)
		if err != nil && strings.Contains(err.Error(), "429") {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
	}
	return err
}
