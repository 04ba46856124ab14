package spawn

import (
	"github.com/pf-aics-riken/mpispawner/internal/hooks"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// Panics used to unwind a running job back to runJob.
type (
	exitUnwind  struct{ status int }
	execUnwind  struct{ argv []string }
	abortUnwind struct{ status int }
)

// service is the spawn-aware lifecycle installed into the hook table.
type service struct {
	s *State
}

var _ hooks.Lifecycle = (*service)(nil)

func (v *service) Exit(status int) {
	if !v.s.running.active {
		v.s.table.TrueExit(status)
		return
	}
	panic(exitUnwind{status: status})
}

func (v *service) Execve(file string, argv, envp []string) error {
	if !v.s.running.active {
		return v.s.table.TrueExecve(file, argv, envp)
	}
	if len(argv) == 0 {
		argv = []string{file}
	}
	panic(execUnwind{argv: append([]string(nil), argv...)})
}

func (v *service) Finalize() error {
	s := v.s
	if !s.running.active {
		return s.table.TrueFinalize()
	}
	if s.spawnParent == nil {
		return nil
	}
	err := s.shim.CommFree(s.spawnParent)
	s.spawnParent = nil
	return err
}

func (v *service) Abort(comm transport.Comm, code int) error {
	s := v.s
	if !s.running.active || s.abortWhenAbort || s.aborting {
		s.aborting = true
		s.logger.Error("aborting process group", "code", code, "in_job", s.running.active)
		return s.table.TrueAbort(comm, code)
	}
	status := code
	if status == 0 {
		status = 1
	}
	s.logger.Warn("abort contained to job", "code", code, "status", status)
	panic(abortUnwind{status: status})
}

// invoke runs the workload, restarting it for every Execve, and returns the
// job's status.
func (s *State) invoke(argv []string) int32 {
	for {
		status, next, replaced := s.call(argv)
		if !replaced {
			return status
		}
		s.logger.Debug("job replaced its program", "argv", next)
		s.running.argv = next
		argv = next
	}
}

func (s *State) call(argv []string) (status int32, next []string, replaced bool) {
	defer func() {
		switch u := recover().(type) {
		case nil:
		case exitUnwind:
			status = int32(u.status)
		case abortUnwind:
			status = int32(u.status)
		case execUnwind:
			next, replaced = u.argv, true
		default:
			panic(u)
		}
	}()
	return int32(s.exec(s, argv)), nil, false
}
