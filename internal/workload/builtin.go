package workload

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ringTag is the point-to-point tag of the ring program's token.
const ringTag = 7

func (r *Registry) registerBuiltins() {
	r.programs["echo"] = r.echo
	r.programs["ring"] = ring
	r.programs["sleep"] = sleep
	r.programs["fail"] = fail
	r.programs["exit"] = exit
	r.programs["abort"] = abort
	r.programs["execve"] = execve
	r.programs["exec"] = r.exec
}

// position returns the caller's rank and the size of its job world.
func position(env Env) (int, int, error) {
	world := env.World()
	rank, err := env.Shim().CommRank(world)
	if err != nil {
		return 0, 0, err
	}
	size, err := env.Shim().CommSize(world)
	if err != nil {
		return 0, 0, err
	}
	return rank, size, nil
}

func intArg(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	return strconv.Atoi(args[0])
}

// echo prints its arguments prefixed with the rank's place in the job.
func (r *Registry) echo(_ context.Context, env Env, args []string) int {
	rank, size, err := position(env)
	if err != nil {
		env.Logger().Error("echo: world position", "error", err)
		return 1
	}
	if _, err := fmt.Fprintf(r.out, "[%d/%d] %s\n", rank, size, strings.Join(args, " ")); err != nil {
		return 1
	}
	return 0
}

// ring passes a counter once around the job world. Rank 0 checks that every
// rank incremented it.
func ring(_ context.Context, env Env, _ []string) int {
	logger := env.Logger()
	rank, size, err := position(env)
	if err != nil {
		logger.Error("ring: world position", "error", err)
		return 1
	}
	if size == 1 {
		return 0
	}

	world := env.World()
	sh := env.Shim()
	buf := make([]byte, 8)
	next, prev := (rank+1)%size, (rank+size-1)%size

	if rank == 0 {
		if err := sh.Send([]byte(strconv.Itoa(1)), next, ringTag, world); err != nil {
			logger.Error("ring: send", "error", err)
			return 1
		}
	}
	st, err := sh.Recv(buf, prev, ringTag, world)
	if err != nil {
		logger.Error("ring: recv", "error", err)
		return 1
	}
	count, err := strconv.Atoi(string(buf[:sh.GetCount(st)]))
	if err != nil {
		logger.Error("ring: bad token", "error", err)
		return 1
	}
	if rank == 0 {
		if count != size {
			logger.Error("ring: token came back short", "count", count, "size", size)
			return 1
		}
		return 0
	}
	if err := sh.Send([]byte(strconv.Itoa(count+1)), next, ringTag, world); err != nil {
		logger.Error("ring: send", "error", err)
		return 1
	}
	return 0
}

func sleep(ctx context.Context, env Env, args []string) int {
	if len(args) != 1 {
		env.Logger().Error("usage: sleep DURATION")
		return StatusUsage
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		env.Logger().Error("sleep: bad duration", "error", err)
		return StatusUsage
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return 0
	case <-ctx.Done():
		return 1
	}
}

// fail returns its argument as the job status.
func fail(_ context.Context, env Env, args []string) int {
	code, err := intArg(args, 1)
	if err != nil {
		env.Logger().Error("fail: bad status", "error", err)
		return StatusUsage
	}
	return code
}

func exit(_ context.Context, env Env, args []string) int {
	code, err := intArg(args, 0)
	if err != nil {
		env.Logger().Error("exit: bad status", "error", err)
		return StatusUsage
	}
	env.Exit(code)
	return code
}

func abort(_ context.Context, env Env, args []string) int {
	code, err := intArg(args, 1)
	if err != nil {
		env.Logger().Error("abort: bad code", "error", err)
		return StatusUsage
	}
	if err := env.Abort(env.World(), code); err != nil {
		env.Logger().Error("abort failed", "error", err)
	}
	return 1
}

// execve replaces the running program with args, which name another
// program of the registry.
func execve(_ context.Context, env Env, args []string) int {
	if len(args) == 0 {
		env.Logger().Error("usage: execve PROGRAM [ARG...]")
		return StatusUsage
	}
	if err := env.Execve(args[0], args, nil); err != nil {
		env.Logger().Error("execve failed", "program", args[0], "error", err)
	}
	return StatusCannotExec
}
