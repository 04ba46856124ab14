package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pf-aics-riken/mpispawner/internal/config"
	"github.com/pf-aics-riken/mpispawner/internal/events"
	"github.com/pf-aics-riken/mpispawner/internal/hooks"
	"github.com/pf-aics-riken/mpispawner/internal/lock"
	"github.com/pf-aics-riken/mpispawner/internal/log"
	"github.com/pf-aics-riken/mpispawner/internal/queue"
	"github.com/pf-aics-riken/mpispawner/internal/scheduler"
	"github.com/pf-aics-riken/mpispawner/internal/spawn"
	"github.com/pf-aics-riken/mpispawner/internal/storage"
	"github.com/pf-aics-riken/mpispawner/internal/transport/fabric"
	"github.com/pf-aics-riken/mpispawner/internal/workload"
)

// jobFlags collects repeated --job values.
type jobFlags []config.JobConfig

func (j *jobFlags) String() string { return fmt.Sprint(len(*j)) }

func (j *jobFlags) Set(v string) error {
	job, err := parseJobFlag(v)
	if err != nil {
		return err
	}
	*j = append(*j, job)
	return nil
}

// parseJobFlag parses SUBWORLD:NPROCS[:ARGS].
func parseJobFlag(v string) (config.JobConfig, error) {
	parts := strings.SplitN(v, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return config.JobConfig{}, fmt.Errorf("job %q: want SUBWORLD:NPROCS[:ARGS]", v)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n <= 0 {
		return config.JobConfig{}, fmt.Errorf("job %q: nprocs must be a positive integer", v)
	}
	job := config.JobConfig{Subworld: parts[0], NProcs: n}
	if len(parts) == 3 {
		job.Args = parts[2]
	}
	return job, nil
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	trace := fs.Bool("trace", false, "Trace every transport call of every rank")
	var extra jobFlags
	fs.Var(&extra, "job", "Queue a job as SUBWORLD:NPROCS:ARGS (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *trace {
		cfg.Spawn.Trace = true
	}
	cfg.Jobs = append(cfg.Jobs, extra...)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid job: %v\n", err)
		return 1
	}
	layout, err := cfg.Layout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid layout: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("mpispawner starting", "version", version, "config", cfg.SourcePath, "ranks", cfg.Cluster.Size)

	lockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire run lock (another run may be using this database)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Service.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Service.RunTimeout)
		defer cancel()
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()

	q := queue.New(db)
	if n, err := q.RecoverRunning(ctx); err != nil {
		logger.Error("failed to recover jobs of an earlier run", "error", err)
		return 1
	} else if n > 0 {
		logger.Warn("marked jobs of an earlier run dead", "count", n)
	}

	ids := make([]string, 0, len(cfg.Jobs))
	for i, job := range cfg.Jobs {
		submittedBy := "config"
		if i >= len(cfg.Jobs)-len(extra) {
			submittedBy = "cli"
		}
		id, err := q.Enqueue(ctx, queue.EnqueueRequest{
			Subworld:    job.Subworld,
			NProcs:      job.NProcs,
			Args:        job.Args,
			Trace:       job.Trace,
			SubmittedBy: submittedBy,
		})
		if err != nil {
			logger.Error("failed to enqueue job", "subworld", job.Subworld, "error", err)
			return 1
		}
		ids = append(ids, id)
	}
	logger.Info("jobs queued", "count", len(ids))

	hub := events.NewHub(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		reportProgress(hub, log.WithComponent("progress"))
	}()

	registry := workload.New(ctx, workload.Options{Out: os.Stdout, ExecTimeout: cfg.Spawn.ExecTimeout})
	runErr := runCluster(ctx, cfg, layout, q, hub, registry)
	hub.Close()
	<-done

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		// Nothing of this run is still executing.
		if _, err := q.RecoverRunning(context.Background()); err != nil {
			logger.Error("failed to mark unfinished jobs dead", "error", err)
		}
	}

	failed, err := printRunSummary(context.Background(), q, ids)
	if err != nil {
		logger.Error("failed to summarize run", "error", err)
		return 1
	}
	switch {
	case runErr != nil:
		return 1
	case failed > 0:
		return 2
	default:
		return 0
	}
}

// runCluster runs the master and every worker as ranks of one fabric.
func runCluster(ctx context.Context, cfg *config.Config, layout *config.Layout, q *queue.Queue, hub *events.Hub, registry *workload.Registry) error {
	fab, err := fabric.New(cfg.Cluster.Size)
	if err != nil {
		return err
	}
	sched := scheduler.New(layout, q, hub, cfg.Spawn.ArgsSize, log.Get())
	colors := layout.Colors()

	err = fab.Run(ctx, func(ctx context.Context, ep *fabric.Endpoint) error {
		rank := ep.Rank()
		table := hooks.New(ep, hooks.Funcs{
			ExitFunc:     ep.Exit,
			ExecveFunc:   ep.Execve,
			FinalizeFunc: ep.Finalize,
			AbortFunc:    ep.Abort,
		})
		if err := ep.Init(); err != nil {
			return err
		}
		base := ep.World()
		entries, err := spawn.SplitSubworlds(ep, base, layout.BlockOf(rank), colors)
		if err != nil {
			return err
		}

		if rank == layout.Master {
			m, err := spawn.NewMaster(spawn.MasterConfig{
				Table:    table,
				Base:     base,
				Policy:   sched,
				ArgsSize: cfg.Spawn.ArgsSize,
				Trace:    cfg.Spawn.Trace,
				Logger:   log.WithRank("master", rank),
				Hub:      hub,
			})
			if err != nil {
				return err
			}
			if err := m.Serve(ctx); err != nil {
				return err
			}
			return table.Finalize()
		}

		st, err := spawn.Setup(table, spawn.Config{
			Base:           base,
			Master:         layout.Master,
			Exec:           registry.Exec(),
			Subworlds:      entries,
			ArgsSize:       cfg.Spawn.ArgsSize,
			AbortWhenAbort: cfg.Spawn.AbortWhenAbort,
			Trace:          cfg.Spawn.Trace,
			Logger:         log.WithRank("spawn", rank),
		})
		if err != nil {
			return err
		}
		err = st.ServiceRPC(ctx, 0)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("worker interrupted: %w", err)
		}
		return err
	})
	if n := sched.Running(); n > 0 {
		log.WithComponent("main").Warn("run ended with jobs still placed", "count", n)
	}
	return err
}

// reportProgress logs job lifecycle events until the hub closes.
func reportProgress(hub *events.Hub, logger *slog.Logger) {
	ch, cancel := hub.Subscribe(events.JobDispatched, events.JobCompleted, events.JobFailed)
	defer cancel()
	for ev := range ch {
		var payload struct {
			JobID  string `json:"job_id"`
			Ranks  []int  `json:"ranks"`
			Status int    `json:"status"`
			Error  string `json:"error"`
		}
		if err := ev.Decode(&payload); err != nil {
			continue
		}
		switch ev.Type {
		case events.JobDispatched:
			logger.Info("job started", "job_id", payload.JobID, "ranks", payload.Ranks)
		case events.JobCompleted:
			logger.Info("job succeeded", "job_id", payload.JobID)
		case events.JobFailed:
			logger.Warn("job failed", "job_id", payload.JobID, "status", payload.Status, "error", payload.Error)
		}
	}
}

func printRunSummary(ctx context.Context, q *queue.Queue, ids []string) (int, error) {
	jobs := make([]*queue.Job, 0, len(ids))
	failed := 0
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if job.Status != queue.StatusSucceeded {
			failed++
			jobLog := log.WithJob(job.ID)
			if job.LastError != nil {
				jobLog = jobLog.With("error", *job.LastError)
			}
			jobLog.Warn("job did not succeed", "status", job.Status, "subworld", job.Subworld)
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs in this run.")
		return 0, nil
	}
	fmt.Println(renderJobTable(jobs))
	fmt.Printf("%d jobs, %d succeeded, %d not succeeded\n", len(jobs), len(jobs)-failed, failed)
	return failed, nil
}
