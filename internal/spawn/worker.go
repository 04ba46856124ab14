package spawn

import (
	"context"
	"errors"
	"fmt"

	"github.com/pf-aics-riken/mpispawner/internal/protocol"
	"github.com/pf-aics-riken/mpispawner/internal/subworld"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// ServiceRPC runs the worker side of the protocol. status describes how the
// caller's previous job ended. It asks the master for work, runs every job it
// is given, and returns after the master answers NONE and the true finalize
// and exit have been called. A version mismatch aborts the group.
func (s *State) ServiceRPC(ctx context.Context, status int32) error {
	if s.baseRank == s.master {
		return fmt.Errorf("rank %d is the master and cannot serve work", s.baseRank)
	}
	buf := make([]byte, protocol.WorkHeaderSize+s.argsSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := &protocol.Next{Initial: !s.announced, Status: status}
		if next.Initial {
			if err := s.transition(StateAwaitDispatch); err != nil {
				return err
			}
		}
		if err := s.send(next); err != nil {
			return err
		}
		s.announced = true

		msg, err := s.receive(buf)
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *protocol.None:
			if err := s.transition(StateTerminated); err != nil {
				return err
			}
			s.logger.Info("no more work", "jobs", s.services)
			if err := s.table.TrueFinalize(); err != nil {
				return fmt.Errorf("finalize: %w", err)
			}
			s.table.TrueExit(0)
			return nil

		case *protocol.Work:
			status, err = s.runJob(m)
			if err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: worker received %s", protocol.ErrMalformed, msg.Kind())
		}
	}
}

func (s *State) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.shim.Send(data, s.master, protocol.RPCTag, s.base); err != nil {
		return fmt.Errorf("send %s to master: %w", msg.Kind(), err)
	}
	return nil
}

func (s *State) receive(buf []byte) (protocol.Message, error) {
	st, err := s.shim.Recv(buf, s.master, protocol.RPCTag, s.base)
	if err != nil {
		return nil, fmt.Errorf("receive from master: %w", err)
	}
	msg, err := protocol.Decode(buf[:s.shim.GetCount(st)])
	if errors.Is(err, protocol.ErrVersion) {
		s.logger.Error("protocol version mismatch", "error", err)
		s.aborting = true
		if aerr := s.table.TrueAbort(s.base, AbortVersion); aerr != nil {
			return nil, errors.Join(err, aerr)
		}
		return nil, err
	}
	return msg, err
}

// runJob places one WORK. Integrity failures are returned as
// StatusIntegrity; transport failures as errors.
func (s *State) runJob(w *protocol.Work) (int32, error) {
	if s.running.active {
		return 0, fmt.Errorf("WORK received while a job is running")
	}
	if w.Trace {
		prev := s.shim.Tracing()
		s.shim.SetTrace(true)
		defer s.shim.SetTrace(prev)
	}
	logger := s.logger.With("subworld", w.Subworld, "nprocs", w.NProcs)

	sub, err := s.registry.Resolve(int(w.Subworld), w.Color)
	if err != nil {
		logger.Warn("rejected work", "error", err)
		return StatusIntegrity, nil
	}
	size, err := s.shim.CommSize(sub)
	if err != nil {
		return 0, err
	}
	if w.NProcs <= 0 || int(w.NProcs) > size {
		logger.Warn("rejected work", "error", fmt.Errorf("%w: nprocs %d for a subworld of %d", subworld.ErrIntegrity, w.NProcs, size))
		return StatusIntegrity, nil
	}
	rank, err := s.shim.CommRank(sub)
	if err != nil {
		return 0, err
	}

	var world transport.Comm
	if int(w.NProcs) == size {
		world, err = s.shim.CommDup(sub)
	} else {
		color := transport.Undefined
		if rank < int(w.NProcs) {
			color = 0
		}
		world, err = s.shim.CommSplit(sub, color, rank)
	}
	if err != nil {
		return 0, fmt.Errorf("job world: %w", err)
	}
	if world == nil {
		logger.Debug("not part of the job", "subworld_rank", rank)
		return 0, nil
	}

	parent, err := s.attach(world)
	if err != nil {
		_ = s.shim.CommFree(world)
		return 0, err
	}

	if err := s.transition(StateRunning); err != nil {
		return 0, err
	}
	argv := protocol.ParseArgs(w.Args)
	s.running = runningJob{active: true, work: *w, argv: argv}
	s.spawnWorld = world
	s.spawnParent = parent
	s.services++
	logger.Info("job started", "argv", argv, "service_count", s.services)

	status := s.invoke(argv)

	if s.spawnParent != nil {
		if err := s.shim.CommFree(s.spawnParent); err != nil {
			logger.Warn("free parent", "error", err)
		}
	}
	if err := s.shim.CommFree(world); err != nil {
		logger.Warn("free job world", "error", err)
	}
	s.running = runningJob{}
	s.spawnWorld = nil
	s.spawnParent = nil
	if err := s.transition(StateAwaitDispatch); err != nil {
		return 0, err
	}
	logger.Info("job finished", "status", status)
	return status, nil
}

// attach names the job world after the base group and connects it to the
// master. The job leader first asks the master to take part.
func (s *State) attach(world transport.Comm) (transport.Comm, error) {
	if err := s.shim.CommSetName(world, s.worldName); err != nil {
		return nil, err
	}
	rank, err := s.shim.CommRank(world)
	if err != nil {
		return nil, err
	}
	if rank == 0 {
		if err := s.shim.Send(nil, s.master, protocol.ICommTag, s.base); err != nil {
			return nil, fmt.Errorf("attach request: %w", err)
		}
	}
	parent, err := s.shim.IntercommCreate(world, 0, s.base, s.master, protocol.ICommTag)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	remote, err := s.shim.CommRemoteSize(parent)
	if err != nil {
		return nil, err
	}
	if remote != 1 {
		_ = s.shim.CommFree(parent)
		return nil, fmt.Errorf("attach: parent group has %d ranks, want 1", remote)
	}
	return parent, nil
}
