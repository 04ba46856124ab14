package scheduler

import (
	"context"

	"github.com/pf-aics-riken/mpispawner/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_queue.go -package=mocks github.com/pf-aics-riken/mpispawner/internal/scheduler QueueService

// QueueService defines the queue operations the scheduler needs.
type QueueService interface {
	Next(ctx context.Context) (*queue.Job, error)
	Start(ctx context.Context, jobID string, ranks []int) error
	Report(ctx context.Context, jobID string, rank int, status int32) error
	Complete(ctx context.Context, jobID string, status queue.Status, exitStatus int, lastError *string) error
}
