package spawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pf-aics-riken/mpispawner/internal/events"
	"github.com/pf-aics-riken/mpispawner/internal/hooks"
	"github.com/pf-aics-riken/mpispawner/internal/protocol"
	"github.com/pf-aics-riken/mpispawner/internal/shim"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// Assignment is one dispatch decision. A nil Work terminates every rank in
// Ranks with NONE; otherwise each rank receives the same WORK and Ranks[0]
// is the job's leader.
type Assignment struct {
	JobID string
	Ranks []int
	Work  *protocol.Work
}

// Report is the status one worker returned for a job.
type Report struct {
	Rank   int
	JobID  string
	Status int32
}

// Policy decides what idle workers do next.
type Policy interface {
	// Schedule is called with the idle worker ranks in ascending order each
	// time a worker becomes idle. Ranks not assigned stay idle.
	Schedule(ctx context.Context, idle []int) ([]Assignment, error)
	// Completed is called for every NEXT that ends a job.
	Completed(ctx context.Context, r Report) error
}

// MasterConfig configures the master side of the protocol.
type MasterConfig struct {
	Table    *hooks.Table
	Base     transport.Comm
	Policy   Policy
	ArgsSize int
	Trace    bool
	// Logger is used as given; see Config.Logger.
	Logger *slog.Logger
	// Hub, when set, receives worker and job events.
	Hub *events.Hub
	// OnAttach receives the intercommunicator of each attached job. The
	// default frees it.
	OnAttach func(leader int, parent transport.Comm) error
}

// Master serves NEXT requests until every worker is terminated.
type Master struct {
	cfg    MasterConfig
	shim   *shim.Shim
	logger *slog.Logger
	phase  MasterPhase

	rank    int
	workers int
	idle    map[int]bool
	running map[int]string
	done    map[int]bool
}

// NewMaster validates cfg.
func NewMaster(cfg MasterConfig) (*Master, error) {
	if cfg.Table == nil || cfg.Base == nil || cfg.Policy == nil {
		return nil, fmt.Errorf("%w: master needs a hook table, base group and policy", ErrConfig)
	}
	if cfg.ArgsSize <= 0 || cfg.ArgsSize > protocol.ArgsSize {
		return nil, fmt.Errorf("%w: args size %d not in (0,%d]", ErrConfig, cfg.ArgsSize, protocol.ArgsSize)
	}
	prims := cfg.Table.Primitives()
	rank, err := prims.CommRank(cfg.Base)
	if err != nil {
		return nil, fmt.Errorf("base group rank: %w", err)
	}
	size, err := prims.CommSize(cfg.Base)
	if err != nil {
		return nil, fmt.Errorf("base group size: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "master", "rank", rank)
	}
	if cfg.OnAttach == nil {
		cfg.OnAttach = func(_ int, parent transport.Comm) error { return prims.CommFree(parent) }
	}

	m := &Master{
		cfg:     cfg,
		logger:  logger,
		rank:    rank,
		workers: size - 1,
		idle:    make(map[int]bool),
		running: make(map[int]string),
		done:    make(map[int]bool),
	}
	m.shim = shim.New(prims, m.logger)
	m.shim.SetTrace(cfg.Trace)
	return m, nil
}

func (m *Master) setPhase(p MasterPhase) {
	if p == m.phase {
		return
	}
	m.logger.Debug("master phase", "from", m.phase.String(), "to", p.String())
	m.phase = p
}

func (m *Master) publish(kind string, data any) {
	if m.cfg.Hub != nil {
		m.cfg.Hub.Publish(kind, data)
	}
}

// Serve runs the master loop. It returns nil once every worker was sent NONE.
func (m *Master) Serve(ctx context.Context) error {
	buf := make([]byte, protocol.MaxMessageSize)
	m.logger.Info("master serving", "workers", m.workers)

	for len(m.done) < m.workers {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.setPhase(PhaseListening)
		st, err := m.shim.Recv(buf, transport.AnySource, transport.AnyTag, m.cfg.Base)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}

		switch st.Tag {
		case protocol.ICommTag:
			if err := m.attach(st.Source); err != nil {
				return err
			}
			continue
		case protocol.RPCTag:
		default:
			m.logger.Warn("ignoring message with unknown tag", "source", st.Source, "tag", st.Tag)
			continue
		}

		msg, err := protocol.Decode(buf[:m.shim.GetCount(st)])
		if errors.Is(err, protocol.ErrVersion) {
			m.logger.Error("protocol version mismatch", "source", st.Source, "error", err)
			if aerr := m.cfg.Table.TrueAbort(m.cfg.Base, AbortVersion); aerr != nil {
				return errors.Join(err, aerr)
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("message from rank %d: %w", st.Source, err)
		}
		next, ok := msg.(*protocol.Next)
		if !ok {
			return fmt.Errorf("%w: master received %s from rank %d", protocol.ErrMalformed, msg.Kind(), st.Source)
		}
		if err := m.ready(ctx, st.Source, next); err != nil {
			return err
		}

		m.setPhase(PhaseDispatching)
		if err := m.dispatch(ctx); err != nil {
			return err
		}
	}

	m.logger.Info("all workers terminated", "workers", m.workers)
	return nil
}

func (m *Master) ready(ctx context.Context, rank int, next *protocol.Next) error {
	if m.done[rank] || m.idle[rank] {
		return fmt.Errorf("rank %d sent NEXT out of turn", rank)
	}
	if next.Initial {
		m.logger.Debug("worker ready", "worker", rank)
		m.publish(events.WorkerReady, map[string]any{"rank": rank})
	} else {
		jobID, ok := m.running[rank]
		if !ok {
			return fmt.Errorf("rank %d reported status %d without a job", rank, next.Status)
		}
		delete(m.running, rank)
		m.logger.Debug("worker reported", "worker", rank, "job_id", jobID, "status", next.Status)
		m.publish(events.WorkerReported, map[string]any{"rank": rank, "job_id": jobID, "status": next.Status})
		if err := m.cfg.Policy.Completed(ctx, Report{Rank: rank, JobID: jobID, Status: next.Status}); err != nil {
			return fmt.Errorf("policy completed: %w", err)
		}
	}
	m.idle[rank] = true
	return nil
}

func (m *Master) dispatch(ctx context.Context) error {
	idle := make([]int, 0, len(m.idle))
	for r := range m.idle {
		idle = append(idle, r)
	}
	slices.Sort(idle)

	assignments, err := m.cfg.Policy.Schedule(ctx, idle)
	if err != nil {
		return fmt.Errorf("policy schedule: %w", err)
	}

	for _, a := range assignments {
		if len(a.Ranks) == 0 {
			return fmt.Errorf("assignment %q has no ranks", a.JobID)
		}
		seen := make(map[int]bool, len(a.Ranks))
		for _, r := range a.Ranks {
			if seen[r] {
				return fmt.Errorf("assignment %q names rank %d more than once", a.JobID, r)
			}
			seen[r] = true
			if !m.idle[r] {
				return fmt.Errorf("assignment %q names rank %d which is not idle", a.JobID, r)
			}
		}

		if a.Work == nil {
			data, err := protocol.Encode(&protocol.None{})
			if err != nil {
				return err
			}
			for _, r := range a.Ranks {
				if err := m.shim.Send(data, r, protocol.RPCTag, m.cfg.Base); err != nil {
					return fmt.Errorf("send NONE to rank %d: %w", r, err)
				}
				delete(m.idle, r)
				m.done[r] = true
				m.publish(events.WorkerTerminated, map[string]any{"rank": r})
			}
			continue
		}

		if len(a.Work.Args) > m.cfg.ArgsSize {
			return fmt.Errorf("job %q: %w: %d bytes, limit %d", a.JobID, protocol.ErrArgsTooLarge, len(a.Work.Args), m.cfg.ArgsSize)
		}
		data, err := protocol.Encode(a.Work)
		if err != nil {
			return fmt.Errorf("job %q: %w", a.JobID, err)
		}
		for _, r := range a.Ranks {
			if err := m.shim.Send(data, r, protocol.RPCTag, m.cfg.Base); err != nil {
				return fmt.Errorf("send WORK to rank %d: %w", r, err)
			}
			delete(m.idle, r)
			m.running[r] = a.JobID
		}
		m.logger.Info("job dispatched", "job_id", a.JobID, "ranks", a.Ranks, "subworld", a.Work.Subworld, "nprocs", a.Work.NProcs)
		m.publish(events.JobDispatched, map[string]any{
			"job_id":   a.JobID,
			"ranks":    a.Ranks,
			"subworld": a.Work.Subworld,
			"nprocs":   a.Work.NProcs,
		})
	}
	return nil
}

// attach completes the master side of a job's intercommunicator after its
// leader's request.
func (m *Master) attach(leader int) error {
	self := m.cfg.Table.Primitives().Self()
	parent, err := m.shim.IntercommCreate(self, 0, m.cfg.Base, leader, protocol.ICommTag)
	if err != nil {
		return fmt.Errorf("attach job led by rank %d: %w", leader, err)
	}
	jobID := m.running[leader]
	m.logger.Debug("job attached", "leader", leader, "job_id", jobID)
	m.publish(events.JobAttached, map[string]any{"leader": leader, "job_id": jobID})
	if err := m.cfg.OnAttach(leader, parent); err != nil {
		return fmt.Errorf("attach job led by rank %d: %w", leader, err)
	}
	return nil
}
