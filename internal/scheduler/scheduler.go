package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pf-aics-riken/mpispawner/internal/config"
	"github.com/pf-aics-riken/mpispawner/internal/events"
	"github.com/pf-aics-riken/mpispawner/internal/protocol"
	"github.com/pf-aics-riken/mpispawner/internal/queue"
	"github.com/pf-aics-riken/mpispawner/internal/spawn"
)

// Scheduler places queued jobs on subworld groups. It implements
// spawn.Policy and is only ever called from the master loop.
//
// Jobs start in queue order. A job that fits some group of its subworld but
// finds none idle blocks every job behind it.
type Scheduler struct {
	layout   *config.Layout
	queue    QueueService
	events   *events.Hub
	logger   *slog.Logger
	argsSize int

	busy    map[int]bool
	running map[string]*placement
}

type placement struct {
	group   config.Group
	pending int
	status  int32
}

var _ spawn.Policy = (*Scheduler)(nil)

// New creates a Scheduler over layout's groups.
func New(layout *config.Layout, q QueueService, hub *events.Hub, argsSize int, logger *slog.Logger) *Scheduler {
	if hub == nil {
		hub = events.NewHub(128)
	}
	if argsSize <= 0 || argsSize > protocol.ArgsSize {
		argsSize = protocol.ArgsSize
	}
	return &Scheduler{
		layout:   layout,
		queue:    q,
		events:   hub,
		logger:   logger.With("component", "scheduler"),
		argsSize: argsSize,
		busy:     make(map[int]bool),
		running:  make(map[string]*placement),
	}
}

// Running returns the number of jobs dispatched and not yet completed.
func (s *Scheduler) Running() int { return len(s.running) }

// Schedule starts as many queued jobs as idle groups allow. Once the queue
// is empty and no job runs, every idle rank is terminated.
func (s *Scheduler) Schedule(ctx context.Context, idle []int) ([]spawn.Assignment, error) {
	free := make(map[int]bool, len(idle))
	for _, r := range idle {
		free[r] = true
	}

	var out []spawn.Assignment
	for {
		job, err := s.queue.Next(ctx)
		if err != nil {
			return out, fmt.Errorf("failed to fetch next job: %w", err)
		}
		if job == nil {
			break
		}

		args := protocol.PackArgs(strings.Fields(job.Args))
		if reason := s.unplaceable(job, args); reason != "" {
			s.logger.Warn("Failing job that can never be placed", "job_id", job.ID, "subworld", job.Subworld, "nprocs", job.NProcs, "reason", reason)
			if err := s.queue.Complete(ctx, job.ID, queue.StatusFailed, int(spawn.StatusIntegrity), &reason); err != nil {
				return out, fmt.Errorf("failed to fail job %s: %w", job.ID, err)
			}
			s.events.Publish(events.JobFailed, map[string]any{"job_id": job.ID, "error": reason})
			continue
		}

		group, ok := s.idleGroup(job, free)
		if !ok {
			s.logger.Debug("No idle group for job", "job_id", job.ID, "subworld", job.Subworld, "nprocs", job.NProcs)
			return out, nil
		}

		if err := s.queue.Start(ctx, job.ID, group.Ranks); err != nil {
			return out, fmt.Errorf("failed to start job %s: %w", job.ID, err)
		}
		for _, r := range group.Ranks {
			delete(free, r)
		}
		s.busy[group.Index] = true
		s.running[job.ID] = &placement{group: group, pending: len(group.Ranks)}

		s.logger.Info("Starting job", "job_id", job.ID, "subworld", job.Subworld, "group", group.Index, "ranks", group.Ranks, "nprocs", job.NProcs)
		out = append(out, spawn.Assignment{
			JobID: job.ID,
			Ranks: group.Ranks,
			Work: &protocol.Work{
				Subworld: int32(group.Index),
				Color:    group.Color,
				NProcs:   int32(job.NProcs),
				Trace:    job.Trace,
				Args:     args,
			},
		})
	}

	if len(s.running) == 0 && len(out) == 0 && len(free) > 0 {
		ranks := make([]int, 0, len(free))
		for _, r := range idle {
			if free[r] {
				ranks = append(ranks, r)
			}
		}
		s.logger.Debug("Queue drained, terminating idle workers", "ranks", ranks)
		out = append(out, spawn.Assignment{Ranks: ranks})
	}
	return out, nil
}

// Completed records one rank's report. The first nonzero status among a
// job's ranks becomes the job's exit status.
func (s *Scheduler) Completed(ctx context.Context, r spawn.Report) error {
	p, ok := s.running[r.JobID]
	if !ok {
		return fmt.Errorf("report from rank %d for unknown job %q", r.Rank, r.JobID)
	}
	if err := s.queue.Report(ctx, r.JobID, r.Rank, r.Status); err != nil {
		return err
	}
	if p.status == 0 {
		p.status = r.Status
	}
	p.pending--
	if p.pending > 0 {
		return nil
	}

	delete(s.running, r.JobID)
	delete(s.busy, p.group.Index)

	if p.status == 0 {
		s.logger.Info("Job succeeded", "job_id", r.JobID, "group", p.group.Index)
		s.events.Publish(events.JobCompleted, map[string]any{"job_id": r.JobID, "status": 0})
		return s.queue.Complete(ctx, r.JobID, queue.StatusSucceeded, 0, nil)
	}

	msg := fmt.Sprintf("job exited with status %d", p.status)
	if p.status == spawn.StatusIntegrity {
		msg = "subworld integrity check failed"
	}
	s.logger.Warn("Job failed", "job_id", r.JobID, "group", p.group.Index, "status", p.status)
	s.events.Publish(events.JobFailed, map[string]any{"job_id": r.JobID, "status": p.status, "error": msg})
	return s.queue.Complete(ctx, r.JobID, queue.StatusFailed, int(p.status), &msg)
}

func (s *Scheduler) unplaceable(job *queue.Job, packed []byte) string {
	if len(packed) > s.argsSize {
		return fmt.Sprintf("args of %d bytes exceed the %d byte limit", len(packed), s.argsSize)
	}
	groups := s.layout.GroupsOf(job.Subworld)
	if len(groups) == 0 {
		return fmt.Sprintf("no subworld named %q", job.Subworld)
	}
	for _, g := range groups {
		if len(g.Ranks) >= job.NProcs {
			return ""
		}
	}
	return fmt.Sprintf("no group of subworld %q has %d ranks", job.Subworld, job.NProcs)
}

// idleGroup returns the first group of the job's subworld that is large
// enough, runs nothing and whose ranks have all announced themselves.
func (s *Scheduler) idleGroup(job *queue.Job, free map[int]bool) (config.Group, bool) {
	for _, g := range s.layout.GroupsOf(job.Subworld) {
		if len(g.Ranks) < job.NProcs || s.busy[g.Index] {
			continue
		}
		ready := true
		for _, r := range g.Ranks {
			if !free[r] {
				ready = false
				break
			}
		}
		if ready {
			return g, true
		}
	}
	return config.Group{}, false
}
