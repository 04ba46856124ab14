// Package shim is the stable call surface the spawn layer uses for the
// transport primitives it needs. Each call forwards to the captured primitive;
// when tracing is on, every call is logged with its arguments and result.
package shim

import (
	"log/slog"
	"sync/atomic"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// Shim forwards to a transport and optionally traces each call.
type Shim struct {
	prims  transport.Transport
	logger *slog.Logger
	trace  atomic.Bool
}

// New wraps prims. Trace records go to logger under the caller's own
// attributes.
func New(prims transport.Transport, logger *slog.Logger) *Shim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shim{prims: prims, logger: logger}
}

// SetTrace turns call tracing on or off.
func (s *Shim) SetTrace(on bool) { s.trace.Store(on) }

// Tracing reports whether call tracing is on.
func (s *Shim) Tracing() bool { return s.trace.Load() }

func (s *Shim) traced(call string, err error, args ...any) {
	if !s.trace.Load() {
		return
	}
	args = append([]any{"call", call}, args...)
	if err != nil {
		args = append(args, "error", err.Error())
	}
	s.logger.Info("trace", args...)
}

func name(c transport.Comm) string {
	if c == nil {
		return "nil"
	}
	return c.String()
}

func (s *Shim) Send(buf []byte, dst, tag int, comm transport.Comm) error {
	err := s.prims.Send(buf, dst, tag, comm)
	s.traced("send", err, "bytes", len(buf), "dst", dst, "tag", tag, "comm", name(comm))
	return err
}

func (s *Shim) Recv(buf []byte, src, tag int, comm transport.Comm) (transport.Status, error) {
	st, err := s.prims.Recv(buf, src, tag, comm)
	s.traced("recv", err, "src", src, "tag", tag, "comm", name(comm), "from", st.Source, "got_tag", st.Tag, "count", st.Count)
	return st, err
}

func (s *Shim) GetCount(st transport.Status) int {
	n := s.prims.GetCount(st)
	s.traced("get_count", nil, "count", n)
	return n
}

func (s *Shim) CommSize(comm transport.Comm) (int, error) {
	n, err := s.prims.CommSize(comm)
	s.traced("comm_size", err, "comm", name(comm), "size", n)
	return n, err
}

func (s *Shim) CommRank(comm transport.Comm) (int, error) {
	r, err := s.prims.CommRank(comm)
	s.traced("comm_rank", err, "comm", name(comm), "comm_rank", r)
	return r, err
}

func (s *Shim) CommRemoteSize(comm transport.Comm) (int, error) {
	n, err := s.prims.CommRemoteSize(comm)
	s.traced("comm_remote_size", err, "comm", name(comm), "size", n)
	return n, err
}

func (s *Shim) CommGetName(comm transport.Comm) (string, error) {
	n, err := s.prims.CommGetName(comm)
	s.traced("comm_get_name", err, "comm", name(comm), "name", n)
	return n, err
}

func (s *Shim) CommSetName(comm transport.Comm, n string) error {
	err := s.prims.CommSetName(comm, n)
	s.traced("comm_set_name", err, "comm", name(comm), "name", n)
	return err
}

func (s *Shim) IntercommCreate(local transport.Comm, localLeader int, peer transport.Comm, remoteLeader, tag int) (transport.Comm, error) {
	ic, err := s.prims.IntercommCreate(local, localLeader, peer, remoteLeader, tag)
	s.traced("intercomm_create", err,
		"local", name(local), "local_leader", localLeader,
		"peer", name(peer), "remote_leader", remoteLeader, "tag", tag,
		"result", name(ic))
	return ic, err
}

func (s *Shim) CommDup(comm transport.Comm) (transport.Comm, error) {
	dup, err := s.prims.CommDup(comm)
	s.traced("comm_dup", err, "comm", name(comm), "result", name(dup))
	return dup, err
}

func (s *Shim) CommSplit(comm transport.Comm, color, key int) (transport.Comm, error) {
	sub, err := s.prims.CommSplit(comm, color, key)
	s.traced("comm_split", err, "comm", name(comm), "color", color, "key", key, "result", name(sub))
	return sub, err
}

func (s *Shim) CommFree(comm transport.Comm) error {
	err := s.prims.CommFree(comm)
	s.traced("comm_free", err, "comm", name(comm))
	return err
}
