package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type workflows struct{}

// WarmInput is the argument of [workflows.WarmCatalog].
type WarmInput struct {
	// Refresh even when the cache is fresh, e.g. right after a push.
	Force bool `json:"force"`
}

// WarmCatalog refreshes the cache if it is stale, or unconditionally when
// forced. Both go through the same gate as readers, so a cycle already in
// flight is never doubled.
func (workflows) WarmCatalog(ctx workflow.Context, in WarmInput) (WarmResult, error) {
	options := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        3, // 0 is unlimited retries
			NonRetryableErrorTypes: []string{errTypeAborted},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)

	activityFn := acts.RefreshIfStale
	if in.Force {
		activityFn = acts.ForceRefresh
	}

	var res WarmResult
	if err := workflow.ExecuteActivity(ctx, activityFn).Get(ctx, &res); err != nil {
		workflow.GetLogger(ctx).Error("warm refresh failed", "error", err)
		return WarmResult{}, err
	}

	return res, nil
}

// TriggerWarm starts a WarmCatalog run outside of the schedule and waits for
// its result.
func TriggerWarm(ctx context.Context, c client.Client, force bool) (WarmResult, error) {
	options := client.StartWorkflowOptions{
		TaskQueue: TaskQueue,
	}
	we, err := c.ExecuteWorkflow(ctx, options, workflows{}.WarmCatalog, WarmInput{Force: force})
	if err != nil {
		return WarmResult{}, fmt.Errorf("unable to execute workflow: %s", err)
	}

	var res WarmResult
	if err := we.Get(ctx, &res); err != nil {
		return WarmResult{}, fmt.Errorf("error warming catalog: %w", err)
	}

	return res, nil
}
