package workload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pf-aics-riken/mpispawner/internal/shim"
	"github.com/pf-aics-riken/mpispawner/internal/spawn"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// Job statuses for failures outside the program itself.
const (
	StatusEmptyArgv  = 1
	StatusUsage      = 2
	StatusTimedOut   = 124
	StatusCannotExec = 126
	StatusNotFound   = 127
)

var (
	ErrDuplicate = errors.New("program already registered")
	ErrEmptyName = errors.New("program name is empty")
)

// Env is what a program sees of its process. *spawn.State implements it.
type Env interface {
	World() transport.Comm
	CommGetParent() transport.Comm
	Shim() *shim.Shim
	Logger() *slog.Logger
	Exit(status int)
	Execve(file string, argv, envp []string) error
	Finalize() error
	Abort(comm transport.Comm, code int) error
}

var _ Env = (*spawn.State)(nil)

// Program runs one job on one rank and returns the rank's status.
type Program func(ctx context.Context, env Env, args []string) int

// Options configures a Registry.
type Options struct {
	// Out receives program output. Writes are serialized across ranks.
	Out io.Writer
	// ExecTimeout bounds each external command run by "exec"; zero means
	// no limit.
	ExecTimeout time.Duration
}

// Registry maps program names to programs. Register everything before the
// first job runs; lookups are not synchronized with registration.
type Registry struct {
	ctx      context.Context
	out      io.Writer
	timeout  time.Duration
	programs map[string]Program
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// New returns a registry holding the builtin programs. ctx bounds every
// program run through it.
func New(ctx context.Context, opts Options) *Registry {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	r := &Registry{
		ctx:      ctx,
		out:      &lockedWriter{w: out},
		timeout:  opts.ExecTimeout,
		programs: make(map[string]Program),
	}
	r.registerBuiltins()
	return r
}

// Register adds a program under name.
func (r *Registry) Register(name string, p Program) error {
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := r.programs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.programs[name] = p
	return nil
}

// Names returns the registered program names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.programs))
	for n := range r.programs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Run looks up argv[0] and runs it with the remaining arguments.
func (r *Registry) Run(env Env, argv []string) int {
	logger := env.Logger()
	if len(argv) == 0 {
		logger.Error("job has no program")
		return StatusEmptyArgv
	}
	p, ok := r.programs[argv[0]]
	if !ok {
		logger.Error("unknown program", "program", argv[0])
		return StatusNotFound
	}
	logger.Debug("running program", "program", argv[0], "args", argv[1:])
	return p(r.ctx, env, argv[1:])
}

// Exec adapts the registry to the spawn layer's workload hook.
func (r *Registry) Exec() spawn.ExecFunc {
	return func(s *spawn.State, argv []string) int {
		return r.Run(s, argv)
	}
}
