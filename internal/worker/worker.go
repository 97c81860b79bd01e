// Package worker keeps the cache warm from Temporal so that readers rarely
// find it stale.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/jdholdren/mirror/internal/mirror"
)

const (
	TaskQueue = "mirror"

	ScheduleID      = "warm_catalog"
	DefaultInterval = 15 * time.Minute
)

// Refresher runs refresh cycles through the staleness gate.
type Refresher interface {
	// RefreshIfStale runs a cycle when the cache is stale.
	RefreshIfStale(ctx context.Context) (mirror.Report, bool, error)
	// ForceRefresh runs a cycle unless one is already in flight.
	ForceRefresh(ctx context.Context) (mirror.Report, bool, error)
}

// NewWorker sets up the worker with registration of workflows, activities, and schedules.
func NewWorker(ctx context.Context, cli client.Client, refresher Refresher, every time.Duration) (worker.Worker, error) {
	a := activities{refresher: refresher}

	w := worker.New(cli, TaskQueue, worker.Options{})

	if err := registerEverything(ctx, w, a, cli, every); err != nil {
		return nil, fmt.Errorf("error registering workflows and activities: %T, %v", err, err)
	}

	return w, nil
}

func registerEverything(ctx context.Context, w worker.Worker, a activities, cli client.Client, every time.Duration) error {
	if every <= 0 {
		every = DefaultInterval
	}

	wfs := workflows{}
	w.RegisterWorkflow(wfs.WarmCatalog)
	w.RegisterActivity(&a)

	handle := cli.ScheduleClient().GetHandle(ctx, ScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		handle, err = cli.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: ScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: every}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        ScheduleID,
				Workflow:  wfs.WarmCatalog,
				Args:      []any{WarmInput{}},
				TaskQueue: TaskQueue,
			},
			TriggerImmediately: true,
		})
		if err != nil {
			return err
		}
	}

	// Pick up interval changes from config on every start
	return handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := input.Description.Schedule
			sched.Spec = &client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: every}},
			}
			return &client.ScheduleUpdate{Schedule: &sched}, nil
		},
	})
}

// Error types
//
// These are error types in the temporal sense, not the general "go" error types sense.
// They are used since between activities error types are marshaled and type information is lost.
const (
	errTypeAborted = "aborted"
)
