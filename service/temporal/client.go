package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Backfill identifies a started backfill workflow run.
type Backfill struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// Client starts backfill workflows on a Temporal server.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return NewClientFromSDK(c, taskQueue, logger), nil
}

// NewClientFromSDK wraps an existing SDK client.
func NewClientFromSDK(c client.Client, taskQueue string, logger *slog.Logger) *Client {
	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}
}

// StartBackfill starts BackfillValidatorWorkflow for a validator. If one is
// already running for that validator, the running one is returned.
func (c *Client) StartBackfill(ctx context.Context, voteAddress string) (*Backfill, error) {
	id := BackfillWorkflowID(voteAddress)

	c.logger.DebugContext(ctx, "starting backfill workflow",
		"vote_address", voteAddress,
		"workflow_id", id,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
		Memo: map[string]interface{}{
			"vote_address": voteAddress,
			"created_by":   "fogoscan",
		},
	}, BackfillValidatorWorkflow, BackfillInput{VoteAddress: voteAddress})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to start backfill workflow",
			"vote_address", voteAddress,
			"workflow_id", id,
			"error", err,
		)
		return nil, fmt.Errorf("failed to start backfill %q: %w", id, err)
	}

	c.logger.InfoContext(ctx, "backfill workflow started",
		"vote_address", voteAddress,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)
	return &Backfill{WorkflowID: run.GetID(), RunID: run.GetRunID()}, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
