package fabric

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"unsafe"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

type comm struct {
	ctx     uint64
	group   []int // world ranks of the local group
	remote  []int // world ranks of the remote group; nil for intracommunicators
	rank    int
	name    string
	builtin bool
	freed   bool
}

func (c *comm) String() string {
	if c.remote != nil {
		return fmt.Sprintf("intercomm#%d(%d:%d)", c.ctx, len(c.group), len(c.remote))
	}
	if c.name != "" {
		return fmt.Sprintf("comm#%d(%s)", c.ctx, c.name)
	}
	return fmt.Sprintf("comm#%d", c.ctx)
}

func (c *comm) target(rank int) (int, error) {
	peers := c.group
	if c.remote != nil {
		peers = c.remote
	}
	if rank < 0 || rank >= len(peers) {
		return 0, fmt.Errorf("%w: %d not in [0,%d) of %s", transport.ErrInvalidRank, rank, len(peers), c)
	}
	return peers[rank], nil
}

// Endpoint is one rank's view of the fabric. It implements transport.Transport
// and the process lifecycle (Exit, Execve, Finalize, Abort) of that rank.
type Endpoint struct {
	f         *Fabric
	rank      int
	world     *comm
	self      *comm
	finalized bool
}

var _ transport.Transport = (*Endpoint)(nil)

// Rank returns the world rank of the endpoint.
func (e *Endpoint) Rank() int { return e.rank }

// Fabric returns the fabric the endpoint belongs to.
func (e *Endpoint) Fabric() *Fabric { return e.f }

func (e *Endpoint) World() transport.Comm { return e.world }
func (e *Endpoint) Self() transport.Comm  { return e.self }

func (e *Endpoint) lookup(c transport.Comm) (*comm, error) {
	cm, ok := c.(*comm)
	if !ok || cm == nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrInvalidComm, c)
	}
	if cm.freed {
		return nil, fmt.Errorf("%w: %s already freed", transport.ErrInvalidComm, cm)
	}
	return cm, nil
}

func (e *Endpoint) Init() error {
	if e.finalized {
		return transport.ErrFinalized
	}
	return nil
}

func (e *Endpoint) Finalize() error {
	if e.finalized {
		return transport.ErrFinalized
	}
	e.finalized = true
	e.f.mu.Lock()
	e.f.finalized[e.rank] = true
	e.f.mu.Unlock()
	return nil
}

// Abort tears down the whole group and terminates the calling rank. It does
// not return.
func (e *Endpoint) Abort(_ transport.Comm, code int) error {
	e.f.abort(e.rank, code)
	e.f.exit(e.rank, code)
	return nil
}

// Exit terminates the calling rank with status. It does not return.
func (e *Endpoint) Exit(status int) {
	e.f.exit(e.rank, status)
}

// Execve cannot replace a goroutine's program image.
func (e *Endpoint) Execve(file string, _, _ []string) error {
	return fmt.Errorf("execve %s: %w", file, errors.ErrUnsupported)
}

func (e *Endpoint) Send(buf []byte, dst, tag int, c transport.Comm) error {
	cm, err := e.lookup(c)
	if err != nil {
		return err
	}
	if tag < 0 {
		return fmt.Errorf("%w: %d", transport.ErrInvalidTag, tag)
	}
	target, err := cm.target(dst)
	if err != nil {
		return err
	}
	return e.f.post(cm.ctx, target, &envelope{src: cm.rank, tag: tag, data: slices.Clone(buf)})
}

func (e *Endpoint) Recv(buf []byte, src, tag int, c transport.Comm) (transport.Status, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return transport.Status{}, err
	}
	if tag < 0 && tag != transport.AnyTag {
		return transport.Status{}, fmt.Errorf("%w: %d", transport.ErrInvalidTag, tag)
	}
	env, err := e.f.take(cm.ctx, e.rank, func(env *envelope) bool {
		return !env.internal &&
			(src == transport.AnySource || env.src == src) &&
			(tag == transport.AnyTag || env.tag == tag)
	})
	if err != nil {
		return transport.Status{}, err
	}
	st := transport.Status{Source: env.src, Tag: env.tag, Count: len(env.data)}
	n := copy(buf, env.data)
	if n < len(env.data) {
		return st, fmt.Errorf("%w: %d bytes into a %d byte buffer", transport.ErrTruncated, len(env.data), len(buf))
	}
	return st, nil
}

func (e *Endpoint) GetCount(st transport.Status) int { return st.Count }

func (e *Endpoint) CommSize(c transport.Comm) (int, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return 0, err
	}
	return len(cm.group), nil
}

func (e *Endpoint) CommRank(c transport.Comm) (int, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return 0, err
	}
	return cm.rank, nil
}

func (e *Endpoint) CommRemoteSize(c transport.Comm) (int, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return 0, err
	}
	if cm.remote == nil {
		return 0, fmt.Errorf("%w: %s is not an intercommunicator", transport.ErrInvalidComm, cm)
	}
	return len(cm.remote), nil
}

func (e *Endpoint) CommGetName(c transport.Comm) (string, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return "", err
	}
	return cm.name, nil
}

func (e *Endpoint) CommSetName(c transport.Comm, name string) error {
	cm, err := e.lookup(c)
	if err != nil {
		return err
	}
	cm.name = name
	return nil
}

func (e *Endpoint) CommFree(c transport.Comm) error {
	cm, err := e.lookup(c)
	if err != nil {
		return err
	}
	if cm.builtin {
		return fmt.Errorf("%w: cannot free %s", transport.ErrInvalidComm, cm)
	}
	cm.freed = true
	return nil
}

func (e *Endpoint) HandleSize() int {
	return int(unsafe.Sizeof((*comm)(nil)))
}

func (e *Endpoint) sendInternal(ctx uint64, dst, src, tag int, val any) error {
	return e.f.post(ctx, dst, &envelope{src: src, tag: tag, internal: true, val: val})
}

func (e *Endpoint) recvInternal(ctx uint64, src, tag int) (any, error) {
	env, err := e.f.take(ctx, e.rank, func(env *envelope) bool {
		return env.internal && env.src == src && env.tag == tag
	})
	if err != nil {
		return nil, err
	}
	return env.val, nil
}

// CommDup is collective over c; rank 0 picks the new context.
func (e *Endpoint) CommDup(c transport.Comm) (transport.Comm, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return nil, err
	}
	if cm.remote != nil {
		return nil, fmt.Errorf("%w: dup of intercommunicator %s", transport.ErrInvalidComm, cm)
	}

	var ctx uint64
	if cm.rank == 0 {
		ctx = e.f.alloc()
		for r := 1; r < len(cm.group); r++ {
			if err := e.sendInternal(cm.ctx, cm.group[r], 0, tagDup, ctx); err != nil {
				return nil, err
			}
		}
	} else {
		v, err := e.recvInternal(cm.ctx, 0, tagDup)
		if err != nil {
			return nil, err
		}
		ctx = v.(uint64)
	}
	return &comm{ctx: ctx, group: slices.Clone(cm.group), rank: cm.rank}, nil
}

type splitRequest struct {
	color, key, rank int
}

type splitReply struct {
	ctx   uint64
	group []int
	rank  int
}

// CommSplit is collective over c. Ranks passing a negative color (such as
// transport.Undefined) take part but receive a nil communicator.
func (e *Endpoint) CommSplit(c transport.Comm, color, key int) (transport.Comm, error) {
	cm, err := e.lookup(c)
	if err != nil {
		return nil, err
	}
	if cm.remote != nil {
		return nil, fmt.Errorf("%w: split of intercommunicator %s", transport.ErrInvalidComm, cm)
	}

	var reply splitReply
	if cm.rank == 0 {
		reqs := make([]splitRequest, len(cm.group))
		reqs[0] = splitRequest{color: color, key: key, rank: 0}
		for r := 1; r < len(cm.group); r++ {
			v, err := e.recvInternal(cm.ctx, r, tagSplit)
			if err != nil {
				return nil, err
			}
			reqs[r] = v.(splitRequest)
		}

		replies := make([]splitReply, len(cm.group))
		byColor := make(map[int][]splitRequest)
		for _, req := range reqs {
			if req.color < 0 {
				continue
			}
			byColor[req.color] = append(byColor[req.color], req)
		}
		colors := make([]int, 0, len(byColor))
		for col := range byColor {
			colors = append(colors, col)
		}
		slices.Sort(colors)
		for _, col := range colors {
			members := byColor[col]
			slices.SortFunc(members, func(a, b splitRequest) int {
				return cmp.Or(cmp.Compare(a.key, b.key), cmp.Compare(a.rank, b.rank))
			})
			group := make([]int, len(members))
			for i, m := range members {
				group[i] = cm.group[m.rank]
			}
			ctx := e.f.alloc()
			for i, m := range members {
				replies[m.rank] = splitReply{ctx: ctx, group: group, rank: i}
			}
		}
		for r := 1; r < len(cm.group); r++ {
			if err := e.sendInternal(cm.ctx, cm.group[r], 0, tagSplit, replies[r]); err != nil {
				return nil, err
			}
		}
		reply = replies[0]
	} else {
		req := splitRequest{color: color, key: key, rank: cm.rank}
		if err := e.sendInternal(cm.ctx, cm.group[0], cm.rank, tagSplit, req); err != nil {
			return nil, err
		}
		v, err := e.recvInternal(cm.ctx, 0, tagSplit)
		if err != nil {
			return nil, err
		}
		reply = v.(splitReply)
	}

	if reply.ctx == 0 {
		return nil, nil
	}
	return &comm{ctx: reply.ctx, group: reply.group, rank: reply.rank}, nil
}

type icommInfo struct {
	ctx   uint64
	group []int
}

// IntercommCreate is collective over local. The two leaders exchange their
// groups over peer using tag; peer is only consulted at the local leader.
func (e *Endpoint) IntercommCreate(local transport.Comm, localLeader int, peer transport.Comm, remoteLeader, tag int) (transport.Comm, error) {
	lc, err := e.lookup(local)
	if err != nil {
		return nil, err
	}
	if lc.remote != nil {
		return nil, fmt.Errorf("%w: local communicator %s is an intercommunicator", transport.ErrInvalidComm, lc)
	}
	if localLeader < 0 || localLeader >= len(lc.group) {
		return nil, fmt.Errorf("%w: local leader %d", transport.ErrInvalidRank, localLeader)
	}

	var info icommInfo
	if lc.rank == localLeader {
		pc, err := e.lookup(peer)
		if err != nil {
			return nil, err
		}
		if tag < 0 {
			return nil, fmt.Errorf("%w: %d", transport.ErrInvalidTag, tag)
		}
		dst, err := pc.target(remoteLeader)
		if err != nil {
			return nil, err
		}
		mine := e.f.alloc()
		if err := e.sendInternal(pc.ctx, dst, pc.rank, tag, icommInfo{ctx: mine, group: lc.group}); err != nil {
			return nil, err
		}
		v, err := e.recvInternal(pc.ctx, remoteLeader, tag)
		if err != nil {
			return nil, err
		}
		theirs := v.(icommInfo)
		info = icommInfo{ctx: e.f.pair(mine, theirs.ctx), group: theirs.group}
		for r, world := range lc.group {
			if r == lc.rank {
				continue
			}
			if err := e.sendInternal(lc.ctx, world, lc.rank, tagIcomm, info); err != nil {
				return nil, err
			}
		}
	} else {
		v, err := e.recvInternal(lc.ctx, localLeader, tagIcomm)
		if err != nil {
			return nil, err
		}
		info = v.(icommInfo)
	}

	return &comm{
		ctx:    info.ctx,
		group:  slices.Clone(lc.group),
		remote: slices.Clone(info.group),
		rank:   lc.rank,
	}, nil
}
