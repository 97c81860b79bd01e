package worker

import (
	"context"
	"errors"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/jdholdren/mirror/internal/mirror"
)

type activities struct {
	refresher Refresher
}

// Used for referencing activities from workflows.
var acts = activities{}

// WarmResult is what a warm-up attempt did.
type WarmResult struct {
	Ran    bool          `json:"ran"`
	Report mirror.Report `json:"report"`
}

func (a *activities) RefreshIfStale(ctx context.Context) (WarmResult, error) {
	return a.warm(ctx, a.refresher.RefreshIfStale)
}

func (a *activities) ForceRefresh(ctx context.Context) (WarmResult, error) {
	return a.warm(ctx, a.refresher.ForceRefresh)
}

func (a *activities) warm(ctx context.Context, refresh func(context.Context) (mirror.Report, bool, error)) (WarmResult, error) {
	info := activity.GetInfo(ctx)
	l := slog.With("workflow_id", info.WorkflowExecution.ID, "activity", info.ActivityType.Name, "attempt", info.Attempt)

	r, ran, err := refresh(ctx)
	if errors.Is(err, mirror.ErrAborted) {
		// The gate window is already spent, so a retry would only find the
		// data fresh.
		l.ErrorContext(ctx, "warm refresh aborted", "error", err)
		return WarmResult{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeAborted, err)
	}
	if err != nil {
		return WarmResult{}, err
	}

	l.InfoContext(ctx, "warm refresh finished", "ran", ran, "cycle_id", r.CycleID)

	return WarmResult{Ran: ran, Report: r}, nil
}
