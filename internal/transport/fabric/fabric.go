// Package fabric is an in-memory transport for a fixed-size process group.
//
// Every rank is a goroutine with its own Endpoint. Sends are buffered (eager),
// receives block until a matching message arrives or the group is aborted.
// Collective operations (dup, split, intercomm creation) are built from internal
// messages that user receives never match.
package fabric

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

const (
	worldCtx = 1

	tagDup   = -10
	tagSplit = -11
	tagIcomm = -12
)

type boxKey struct {
	ctx uint64
	dst int
}

type envelope struct {
	src      int
	tag      int
	internal bool
	data     []byte
	val      any
}

// Fabric is a fixed set of ranks sharing one message space.
type Fabric struct {
	size      int
	endpoints []*Endpoint

	mu          sync.Mutex
	cond        *sync.Cond
	boxes       map[boxKey][]*envelope
	nextCtx     uint64
	pairs       map[[2]uint64]uint64
	interrupted bool
	aborted     bool
	abortCode   int
	abortRank   int
	exitCodes   map[int]int
	finalized   map[int]bool
}

// New creates a fabric of size ranks.
func New(size int) (*Fabric, error) {
	if size <= 0 {
		return nil, fmt.Errorf("fabric size must be positive (got %d)", size)
	}
	f := &Fabric{
		size:      size,
		boxes:     make(map[boxKey][]*envelope),
		nextCtx:   worldCtx + 1 + uint64(size),
		pairs:     make(map[[2]uint64]uint64),
		exitCodes: make(map[int]int),
		finalized: make(map[int]bool),
	}
	f.cond = sync.NewCond(&f.mu)

	group := make([]int, size)
	for r := range size {
		group[r] = r
	}
	f.endpoints = make([]*Endpoint, size)
	for r := range size {
		f.endpoints[r] = &Endpoint{
			f:     f,
			rank:  r,
			world: &comm{ctx: worldCtx, group: group, rank: r, name: "MPI_COMM_WORLD", builtin: true},
			self:  &comm{ctx: worldCtx + 1 + uint64(r), group: []int{r}, rank: 0, name: "MPI_COMM_SELF", builtin: true},
		}
	}
	return f, nil
}

// Size returns the number of ranks.
func (f *Fabric) Size() int { return f.size }

// Endpoint returns the endpoint of rank.
func (f *Fabric) Endpoint(rank int) *Endpoint {
	return f.endpoints[rank]
}

// Run starts fn once per rank and waits for all of them. A rank that exits
// through Exit or Abort ends without error. When ctx is cancelled or a rank
// fails, blocked receives on every rank return transport.ErrAborted.
func (f *Fabric) Run(ctx context.Context, fn func(ctx context.Context, ep *Endpoint) error) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, f.interrupt)
	defer stop()

	for _, ep := range f.endpoints {
		g.Go(func() error {
			if err := fn(gctx, ep); err != nil {
				return fmt.Errorf("rank %d: %w", ep.rank, err)
			}
			return nil
		})
	}
	err := g.Wait()

	f.mu.Lock()
	aborted, code, rank := f.aborted, f.abortCode, f.abortRank
	f.mu.Unlock()
	if aborted {
		return fmt.Errorf("%w: rank %d called abort with code %d", transport.ErrAborted, rank, code)
	}
	return err
}

// ExitCode reports the status a rank passed to Exit.
func (f *Fabric) ExitCode(rank int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.exitCodes[rank]
	return code, ok
}

// Finalized reports whether rank called Finalize.
func (f *Fabric) Finalized(rank int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized[rank]
}

// Aborted reports whether any rank aborted the group, and with which code.
func (f *Fabric) Aborted() (code int, rank int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.abortCode, f.abortRank, f.aborted
}

// Pending returns the number of undelivered messages, internal ones included.
func (f *Fabric) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.boxes {
		n += len(q)
	}
	return n
}

func (f *Fabric) interrupt() {
	f.mu.Lock()
	f.interrupted = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *Fabric) abort(rank, code int) {
	f.mu.Lock()
	if !f.aborted {
		f.aborted = true
		f.abortCode = code
		f.abortRank = rank
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *Fabric) exit(rank, code int) {
	f.mu.Lock()
	f.exitCodes[rank] = code
	f.mu.Unlock()
	runtime.Goexit()
}

func (f *Fabric) alloc() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextCtx
	f.nextCtx++
	return id
}

// pair maps two leader-chosen ids to one shared context id; both leaders
// arrive at the same answer whichever asks first.
func (f *Fabric) pair(a, b uint64) uint64 {
	key := [2]uint64{min(a, b), max(a, b)}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.pairs[key]; ok {
		return id
	}
	id := f.nextCtx
	f.nextCtx++
	f.pairs[key] = id
	return id
}

func (f *Fabric) post(ctx uint64, dst int, env *envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.aborted || f.interrupted {
		return transport.ErrAborted
	}
	key := boxKey{ctx: ctx, dst: dst}
	f.boxes[key] = append(f.boxes[key], env)
	f.cond.Broadcast()
	return nil
}

func (f *Fabric) take(ctx uint64, dst int, match func(*envelope) bool) (*envelope, error) {
	key := boxKey{ctx: ctx, dst: dst}
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.aborted || f.interrupted {
			return nil, transport.ErrAborted
		}
		q := f.boxes[key]
		for i, env := range q {
			if !match(env) {
				continue
			}
			q = append(q[:i:i], q[i+1:]...)
			if len(q) == 0 {
				delete(f.boxes, key)
			} else {
				f.boxes[key] = q
			}
			return env, nil
		}
		f.cond.Wait()
	}
}
