package fabric

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
)

func runFabric(t *testing.T, size int, fn func(ctx context.Context, ep *Endpoint) error) (*Fabric, error) {
	t.Helper()
	f, err := New(size)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = f.Run(ctx, fn)
	require.NoError(t, ctx.Err(), "fabric run timed out")
	return f, err
}

func TestNewRejectsEmptyGroup(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestSendRecv(t *testing.T) {
	got := make([]string, 3)
	_, err := runFabric(t, 3, func(_ context.Context, ep *Endpoint) error {
		if ep.Rank() == 0 {
			for dst := 1; dst < 3; dst++ {
				if err := ep.Send([]byte{byte('a' + dst)}, dst, 7, ep.World()); err != nil {
					return err
				}
			}
			return nil
		}
		buf := make([]byte, 4)
		st, err := ep.Recv(buf, transport.AnySource, transport.AnyTag, ep.World())
		if err != nil {
			return err
		}
		assert.Equal(t, 0, st.Source)
		assert.Equal(t, 7, st.Tag)
		assert.Equal(t, 1, ep.GetCount(st))
		got[ep.Rank()] = string(buf[:st.Count])
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "b", "c"}, got)
}

func TestRecvMatchesTagOutOfOrder(t *testing.T) {
	_, err := runFabric(t, 2, func(_ context.Context, ep *Endpoint) error {
		if ep.Rank() == 0 {
			if err := ep.Send([]byte("first"), 1, 1, ep.World()); err != nil {
				return err
			}
			return ep.Send([]byte("second"), 1, 2, ep.World())
		}
		buf := make([]byte, 16)
		st, err := ep.Recv(buf, 0, 2, ep.World())
		if err != nil {
			return err
		}
		assert.Equal(t, "second", string(buf[:st.Count]))
		st, err = ep.Recv(buf, 0, 1, ep.World())
		if err != nil {
			return err
		}
		assert.Equal(t, "first", string(buf[:st.Count]))
		return nil
	})
	require.NoError(t, err)
}

func TestRecvTruncated(t *testing.T) {
	_, err := runFabric(t, 2, func(_ context.Context, ep *Endpoint) error {
		if ep.Rank() == 0 {
			return ep.Send([]byte("too long"), 1, 0, ep.World())
		}
		st, err := ep.Recv(make([]byte, 3), 0, 0, ep.World())
		assert.ErrorIs(t, err, transport.ErrTruncated)
		assert.Equal(t, 8, st.Count)
		return nil
	})
	require.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	f, err := New(2)
	require.NoError(t, err)
	ep := f.Endpoint(0)

	assert.ErrorIs(t, ep.Send(nil, 5, 0, ep.World()), transport.ErrInvalidRank)
	assert.ErrorIs(t, ep.Send(nil, 1, -3, ep.World()), transport.ErrInvalidTag)
	assert.ErrorIs(t, ep.Send(nil, 1, 0, nil), transport.ErrInvalidComm)
	assert.ErrorIs(t, ep.CommFree(ep.World()), transport.ErrInvalidComm)
	_, err = ep.CommRemoteSize(ep.World())
	assert.ErrorIs(t, err, transport.ErrInvalidComm)
	assert.Equal(t, 0, f.Pending())
}

func TestCommDupIsolatesTraffic(t *testing.T) {
	_, err := runFabric(t, 3, func(_ context.Context, ep *Endpoint) error {
		dup, err := ep.CommDup(ep.World())
		if err != nil {
			return err
		}
		size, _ := ep.CommSize(dup)
		assert.Equal(t, 3, size)
		rank, _ := ep.CommRank(dup)
		assert.Equal(t, ep.Rank(), rank)

		if ep.Rank() == 0 {
			if err := ep.Send([]byte("world"), 1, 0, ep.World()); err != nil {
				return err
			}
			if err := ep.Send([]byte("dup"), 1, 0, dup); err != nil {
				return err
			}
		}
		if ep.Rank() == 1 {
			buf := make([]byte, 8)
			st, err := ep.Recv(buf, 0, 0, dup)
			if err != nil {
				return err
			}
			assert.Equal(t, "dup", string(buf[:st.Count]))
			st, err = ep.Recv(buf, 0, 0, ep.World())
			if err != nil {
				return err
			}
			assert.Equal(t, "world", string(buf[:st.Count]))
		}
		if err := ep.CommFree(dup); err != nil {
			return err
		}
		assert.ErrorIs(t, ep.CommFree(dup), transport.ErrInvalidComm)
		return nil
	})
	require.NoError(t, err)
}

func TestCommSplit(t *testing.T) {
	type result struct {
		nil        bool
		size, rank int
	}
	results := make([]result, 5)
	_, err := runFabric(t, 5, func(_ context.Context, ep *Endpoint) error {
		color := ep.Rank() % 2
		if ep.Rank() == 4 {
			color = transport.Undefined
		}
		// reverse order inside each color
		sub, err := ep.CommSplit(ep.World(), color, -ep.Rank())
		if err != nil {
			return err
		}
		if sub == nil {
			results[ep.Rank()] = result{nil: true}
			return nil
		}
		size, _ := ep.CommSize(sub)
		rank, _ := ep.CommRank(sub)
		results[ep.Rank()] = result{size: size, rank: rank}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []result{
		{size: 2, rank: 1},
		{size: 2, rank: 1},
		{size: 2, rank: 0},
		{size: 2, rank: 0},
		{nil: true},
	}, results)
}

func TestIntercommCreate(t *testing.T) {
	// rank 0 alone against ranks 1..3
	_, err := runFabric(t, 4, func(_ context.Context, ep *Endpoint) error {
		if ep.Rank() == 0 {
			none, err := ep.CommSplit(ep.World(), transport.Undefined, 0)
			if err != nil {
				return err
			}
			assert.Nil(t, none)
			ic, err := ep.IntercommCreate(ep.Self(), 0, ep.World(), 1, 601)
			if err != nil {
				return err
			}
			remote, err := ep.CommRemoteSize(ic)
			if err != nil {
				return err
			}
			assert.Equal(t, 3, remote)
			for r := range remote {
				if err := ep.Send([]byte{byte(r)}, r, 9, ic); err != nil {
					return err
				}
			}
			return nil
		}

		group, err := ep.CommSplit(ep.World(), 0, ep.Rank())
		if err != nil {
			return err
		}
		var peer transport.Comm
		if ep.Rank() == 1 {
			peer = ep.World()
		}
		ic, err := ep.IntercommCreate(group, 0, peer, 0, 601)
		if err != nil {
			return err
		}
		remote, err := ep.CommRemoteSize(ic)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, remote)
		buf := make([]byte, 1)
		st, err := ep.Recv(buf, 0, 9, ic)
		if err != nil {
			return err
		}
		assert.Equal(t, 0, st.Source)
		assert.Equal(t, byte(ep.Rank()-1), buf[0])
		return nil
	})
	require.NoError(t, err)
}

func TestAbortWakesBlockedRanks(t *testing.T) {
	f, err := runFabric(t, 3, func(_ context.Context, ep *Endpoint) error {
		if ep.Rank() == 2 {
			return ep.Abort(ep.World(), 7)
		}
		_, err := ep.Recv(make([]byte, 1), transport.AnySource, transport.AnyTag, ep.World())
		return err
	})
	require.ErrorIs(t, err, transport.ErrAborted)
	code, rank, ok := f.Aborted()
	assert.True(t, ok)
	assert.Equal(t, 7, code)
	assert.Equal(t, 2, rank)
}

func TestExitRecordsStatus(t *testing.T) {
	f, err := runFabric(t, 2, func(_ context.Context, ep *Endpoint) error {
		if err := ep.Finalize(); err != nil {
			return err
		}
		ep.Exit(10 + ep.Rank())
		return errors.New("unreachable")
	})
	require.NoError(t, err)
	for r := range 2 {
		code, ok := f.ExitCode(r)
		assert.True(t, ok)
		assert.Equal(t, 10+r, code)
		assert.True(t, f.Finalized(r))
	}
	assert.ErrorIs(t, f.Endpoint(0).Finalize(), transport.ErrFinalized)
}

func TestExecveUnsupported(t *testing.T) {
	f, err := New(1)
	require.NoError(t, err)
	assert.ErrorIs(t, f.Endpoint(0).Execve("/bin/true", nil, nil), errors.ErrUnsupported)
}

func TestRunCancelledContextInterruptsReceives(t *testing.T) {
	f, err := New(2)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err = f.Run(ctx, func(_ context.Context, ep *Endpoint) error {
		_, err := ep.Recv(make([]byte, 1), transport.AnySource, transport.AnyTag, ep.World())
		return err
	})
	assert.ErrorIs(t, err, transport.ErrAborted)
}
