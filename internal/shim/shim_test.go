package shim

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pf-aics-riken/mpispawner/internal/transport"
	"github.com/pf-aics-riken/mpispawner/internal/transport/mocks"
)

type testComm string

func (c testComm) String() string { return string(c) }

func newTestShim(t *testing.T) (*Shim, *mocks.MockTransport, *bytes.Buffer) {
	ctrl := gomock.NewController(t)
	prims := mocks.NewMockTransport(ctrl)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(prims, logger), prims, &buf
}

func TestForwardsWithoutTrace(t *testing.T) {
	s, prims, logs := newTestShim(t)
	world := testComm("world")

	prims.EXPECT().Send([]byte("hi"), 3, 600, world).Return(nil)
	prims.EXPECT().CommSize(world).Return(4, nil)
	prims.EXPECT().CommRank(world).Return(2, nil)

	require.NoError(t, s.Send([]byte("hi"), 3, 600, world))
	size, err := s.CommSize(world)
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	rank, err := s.CommRank(world)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	assert.False(t, s.Tracing())
	assert.Empty(t, logs.String())
}

func TestPropagatesErrorsUnchanged(t *testing.T) {
	s, prims, _ := newTestShim(t)
	world := testComm("world")
	boom := errors.New("boom")

	prims.EXPECT().Recv(gomock.Any(), transport.AnySource, transport.AnyTag, world).
		Return(transport.Status{}, boom)
	prims.EXPECT().CommFree(world).Return(transport.ErrInvalidComm)

	_, err := s.Recv(make([]byte, 8), transport.AnySource, transport.AnyTag, world)
	assert.Same(t, boom, err)
	assert.Same(t, transport.ErrInvalidComm, s.CommFree(world))
}

func TestTraceLogsEveryCall(t *testing.T) {
	s, prims, logs := newTestShim(t)
	s.SetTrace(true)
	world := testComm("world")
	sub := testComm("sub")

	prims.EXPECT().CommDup(world).Return(sub, nil)
	prims.EXPECT().CommSetName(sub, "job").Return(nil)
	prims.EXPECT().CommSplit(world, transport.Undefined, 1).Return(nil, nil)
	prims.EXPECT().IntercommCreate(sub, 0, world, 0, 601).Return(nil, errors.New("refused"))

	dup, err := s.CommDup(world)
	require.NoError(t, err)
	assert.Equal(t, sub, dup)
	require.NoError(t, s.CommSetName(dup, "job"))
	none, err := s.CommSplit(world, transport.Undefined, 1)
	require.NoError(t, err)
	assert.Nil(t, none)
	_, err = s.IntercommCreate(sub, 0, world, 0, 601)
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"call":"comm_dup"`)
	assert.Contains(t, lines[0], `"result":"sub"`)
	assert.Contains(t, lines[1], `"name":"job"`)
	assert.Contains(t, lines[2], `"result":"nil"`)
	assert.Contains(t, lines[3], `"error":"refused"`)

	s.SetTrace(false)
	prims.EXPECT().GetCount(transport.Status{Count: 5}).Return(5)
	assert.Equal(t, 5, s.GetCount(transport.Status{Count: 5}))
	assert.Len(t, strings.Split(strings.TrimSpace(logs.String()), "\n"), 4)
}
