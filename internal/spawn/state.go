package spawn

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pf-aics-riken/mpispawner/internal/hooks"
	"github.com/pf-aics-riken/mpispawner/internal/protocol"
	"github.com/pf-aics-riken/mpispawner/internal/shim"
	"github.com/pf-aics-riken/mpispawner/internal/subworld"
	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

// ErrConfig marks a Setup parameter the spawn layer cannot run with.
var ErrConfig = errors.New("spawn configuration error")

const (
	// StatusIntegrity is the NEXT status of a WORK that failed the subworld
	// checks.
	StatusIntegrity = -2

	// AbortVersion is the abort code on a protocol version mismatch.
	AbortVersion = 3
)

// ExecFunc runs one job. argv is the job's parsed argument string; the
// return value becomes the job's status.
type ExecFunc func(s *State, argv []string) int

// Config holds the Setup parameters of one process.
type Config struct {
	// Base is the fixed process group everything runs in.
	Base transport.Comm
	// Master is the rank of the master within Base.
	Master int
	Exec   ExecFunc
	// Subworlds are the groups a job can be placed in. A rank outside a
	// group registers a nil Comm with the group's color.
	Subworlds []subworld.Entry
	// ArgsSize bounds the argument bytes of a WORK message.
	ArgsSize int
	// AbortWhenAbort makes Abort inside a job take down the whole group
	// instead of ending only the job.
	AbortWhenAbort bool
	Trace          bool
	// Logger is used as given, so it should already carry the component and
	// rank. A nil Logger is the default one with both added.
	Logger *slog.Logger
}

type runningJob struct {
	active bool
	work   protocol.Work
	argv   []string
}

// State is the spawn layer of one process.
type State struct {
	table    *hooks.Table
	shim     *shim.Shim
	base     transport.Comm
	baseRank int
	master   int
	exec     ExecFunc
	registry subworld.Registry
	argsSize int
	logger   *slog.Logger

	abortWhenAbort bool
	worldName      string

	state       WorkerState
	running     runningJob
	spawnWorld  transport.Comm
	spawnParent transport.Comm
	announced   bool
	services    int
	aborting    bool
}

// Setup validates cfg, registers the subworlds and installs the service
// lifecycle into table. On error nothing is installed.
func Setup(table *hooks.Table, cfg Config) (*State, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: nil hook table", ErrConfig)
	}
	if cfg.Base == nil {
		return nil, fmt.Errorf("%w: no base group", ErrConfig)
	}
	if cfg.Exec == nil {
		return nil, fmt.Errorf("%w: no workload function", ErrConfig)
	}
	if cfg.ArgsSize <= 0 || cfg.ArgsSize > protocol.ArgsSize {
		return nil, fmt.Errorf("%w: args size %d not in (0,%d]", ErrConfig, cfg.ArgsSize, protocol.ArgsSize)
	}
	if table.Installed() {
		return nil, fmt.Errorf("%w: %w", ErrConfig, hooks.ErrAlreadyInstalled)
	}

	prims := table.Primitives()

	size, err := prims.CommSize(cfg.Base)
	if err != nil {
		return nil, fmt.Errorf("base group size: %w", err)
	}
	if cfg.Master < 0 || cfg.Master >= size {
		return nil, fmt.Errorf("%w: master rank %d outside a group of %d", ErrConfig, cfg.Master, size)
	}
	rank, err := prims.CommRank(cfg.Base)
	if err != nil {
		return nil, fmt.Errorf("base group rank: %w", err)
	}
	worldName, err := prims.CommGetName(cfg.Base)
	if err != nil {
		return nil, fmt.Errorf("base group name: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "spawn", "rank", rank)
	}

	s := &State{
		table:          table,
		base:           cfg.Base,
		baseRank:       rank,
		master:         cfg.Master,
		exec:           cfg.Exec,
		argsSize:       cfg.ArgsSize,
		abortWhenAbort: cfg.AbortWhenAbort,
		worldName:      worldName,
		logger:         logger,
		state:          StateIdle,
	}
	if err := s.registry.Register(cfg.Subworlds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	s.shim = shim.New(prims, s.logger)
	s.shim.SetTrace(cfg.Trace)

	if err := table.Install(&service{s: s}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	s.logger.Debug("spawn layer ready",
		"master", cfg.Master,
		"subworlds", s.registry.Len(),
		"args_size", cfg.ArgsSize,
		"abort_when_abort", cfg.AbortWhenAbort,
		"comm_handle_size", table.CommHandleSize(),
	)
	return s, nil
}

// Rank returns the caller's rank in the base group.
func (s *State) Rank() int { return s.baseRank }

// Master returns the master's rank in the base group.
func (s *State) Master() int { return s.master }

// Shim returns the traced transport surface.
func (s *State) Shim() *shim.Shim { return s.shim }

// Table returns the hook table the service lifecycle is installed in.
func (s *State) Table() *hooks.Table { return s.table }

// ServiceCount returns the number of jobs this process has run.
func (s *State) ServiceCount() int { return s.services }

// WorkerState returns the protocol state of this process.
func (s *State) WorkerState() WorkerState { return s.state }

// Running reports whether a job is running and, if so, its WORK message.
func (s *State) Running() (protocol.Work, bool) {
	return s.running.work, s.running.active
}

// Logger returns the process logger, annotated with the running job's
// subworld when a job is running.
func (s *State) Logger() *slog.Logger {
	if !s.running.active {
		return s.logger
	}
	return s.logger.With("subworld", s.running.work.Subworld)
}

// World is the group spawned code runs in: the job world while a job runs,
// the base group otherwise.
func (s *State) World() transport.Comm {
	if s.running.active && s.spawnWorld != nil {
		return s.spawnWorld
	}
	return s.base
}

// CommGetParent returns the intercommunicator to the master while a job
// runs and has not finalized, nil otherwise.
func (s *State) CommGetParent() transport.Comm {
	if !s.running.active {
		return nil
	}
	return s.spawnParent
}

// Init is a no-op inside a job; outside one it initializes the transport.
func (s *State) Init() error {
	if s.running.active {
		return nil
	}
	return s.table.Primitives().Init()
}

// Exit, Execve, Finalize and Abort go through the hook table exactly as
// ordinary code would.

func (s *State) Exit(status int) { s.table.Exit(status) }

func (s *State) Execve(file string, argv, envp []string) error {
	return s.table.Execve(file, argv, envp)
}

func (s *State) Finalize() error { return s.table.Finalize() }

func (s *State) Abort(comm transport.Comm, code int) error {
	return s.table.Abort(comm, code)
}

func (s *State) transition(to WorkerState) error {
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}
	s.logger.Debug("worker state", "from", s.state.String(), "to", to.String())
	s.state = to
	return nil
}
