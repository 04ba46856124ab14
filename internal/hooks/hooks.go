// Package hooks is the interception table for process lifecycle calls.
//
// A Table holds two Lifecycle implementations: the true entry points captured
// when the table is built, and the service entry points installed by the spawn
// layer. Ordinary code calls Exit, Execve, Finalize and Abort on the table and
// reaches whichever is current; the spawn layer uses the True* calls to reach
// the captured originals regardless of what is installed.
//
// A Table belongs to one process and is used from a single goroutine.
package hooks

import (
	"errors"
	"fmt"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

var ErrAlreadyInstalled = errors.New("service hooks already installed")

// Lifecycle is the set of process lifecycle entry points that can be
// intercepted.
type Lifecycle interface {
	// Exit ends the caller with status. The true Exit does not return.
	Exit(status int)
	// Execve replaces the caller's program.
	Execve(file string, argv, envp []string) error
	Finalize() error
	Abort(comm transport.Comm, code int) error
}

// Funcs adapts plain functions to a Lifecycle. Nil fields are no-ops.
type Funcs struct {
	ExitFunc     func(status int)
	ExecveFunc   func(file string, argv, envp []string) error
	FinalizeFunc func() error
	AbortFunc    func(comm transport.Comm, code int) error
}

func (f Funcs) Exit(status int) {
	if f.ExitFunc != nil {
		f.ExitFunc(status)
	}
}

func (f Funcs) Execve(file string, argv, envp []string) error {
	if f.ExecveFunc == nil {
		return nil
	}
	return f.ExecveFunc(file, argv, envp)
}

func (f Funcs) Finalize() error {
	if f.FinalizeFunc == nil {
		return nil
	}
	return f.FinalizeFunc()
}

func (f Funcs) Abort(comm transport.Comm, code int) error {
	if f.AbortFunc == nil {
		return nil
	}
	return f.AbortFunc(comm, code)
}

// Table dispatches lifecycle calls to the installed service entry points, or
// to the true ones when nothing is installed.
type Table struct {
	prims      transport.Transport
	orig       Lifecycle
	service    Lifecycle
	handleSize int
}

// New captures prims and orig as the true entry points.
func New(prims transport.Transport, orig Lifecycle) *Table {
	return &Table{
		prims:      prims,
		orig:       orig,
		handleSize: prims.HandleSize(),
	}
}

// Install places service in front of the true entry points. It may be called
// once per table.
func (t *Table) Install(service Lifecycle) error {
	if service == nil {
		return errors.New("install: nil service lifecycle")
	}
	if t.service != nil {
		return ErrAlreadyInstalled
	}
	t.service = service
	return nil
}

// Installed reports whether service entry points are in place.
func (t *Table) Installed() bool { return t.service != nil }

func (t *Table) current() Lifecycle {
	if t.service != nil {
		return t.service
	}
	return t.orig
}

func (t *Table) Exit(status int) { t.current().Exit(status) }

func (t *Table) Execve(file string, argv, envp []string) error {
	return t.current().Execve(file, argv, envp)
}

func (t *Table) Finalize() error { return t.current().Finalize() }

func (t *Table) Abort(comm transport.Comm, code int) error {
	return t.current().Abort(comm, code)
}

func (t *Table) TrueExit(status int) { t.orig.Exit(status) }

func (t *Table) TrueExecve(file string, argv, envp []string) error {
	if err := t.orig.Execve(file, argv, envp); err != nil {
		return fmt.Errorf("true execve: %w", err)
	}
	return nil
}

func (t *Table) TrueFinalize() error { return t.orig.Finalize() }

func (t *Table) TrueAbort(comm transport.Comm, code int) error {
	return t.orig.Abort(comm, code)
}

// Primitives returns the captured transport primitives.
func (t *Table) Primitives() transport.Transport { return t.prims }

// CommHandleSize is the byte size of one communicator handle of the
// underlying transport.
func (t *Table) CommHandleSize() int { return t.handleSize }
