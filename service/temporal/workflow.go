package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// BackfillWorkflowID is the workflow id used for a validator, so at most one
// backfill per validator runs at a time.
func BackfillWorkflowID(voteAddress string) string {
	return "backfill-validator-" + voteAddress
}

// BackfillValidatorWorkflow caches a validator's complete vote history ahead of
// any user request.
//
// The workflow performs these steps:
// 1. Read the stored scan state (GetScanStatus activity)
// 2. Stop early when the history is already complete
// 3. Drive the scanner to completion (ScanValidator activity)
func BackfillValidatorWorkflow(ctx workflow.Context, input BackfillInput) (*BackfillResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("BackfillValidatorWorkflow started", "vote_address", input.VoteAddress)

	result := &BackfillResult{
		VoteAddress: input.VoteAddress,
		StartedAt:   workflow.Now(ctx),
	}

	statusCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var status *ScanStatus
	if err := workflow.ExecuteActivity(statusCtx, a.GetScanStatus, input).Get(ctx, &status); err != nil {
		errMsg := fmt.Sprintf("failed to read scan status: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to read scan status: %w", err)
	}

	if status.Complete {
		logger.Info("validator history already cached", "vote_address", input.VoteAddress)
		result.Cached = true
		result.Months = status.Months
		result.SuccessCount = status.SuccessCount
		result.TotalCount = status.TotalCount
		return result, nil
	}

	// Long-running: one attempt may walk the whole history. Heartbeats keep it
	// alive, and a retried attempt resumes from the stored cursor.
	scanCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    2 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    10,
		},
	})

	var scan *ScanValidatorResult
	if err := workflow.ExecuteActivity(scanCtx, a.ScanValidator, input).Get(ctx, &scan); err != nil {
		logger.Error("backfill scan failed", "vote_address", input.VoteAddress, "error", err)
		errMsg := fmt.Sprintf("failed to scan validator: %v", err)
		result.Error = &errMsg
		return result, fmt.Errorf("failed to scan validator: %w", err)
	}

	result.Batches = scan.Batches
	result.Months = scan.Status.Months
	result.SuccessCount = scan.Status.SuccessCount
	result.TotalCount = scan.Status.TotalCount

	logger.Info("BackfillValidatorWorkflow completed successfully",
		"vote_address", input.VoteAddress,
		"batches", result.Batches,
		"months", result.Months,
		"total", result.TotalCount,
	)
	return result, nil
}
