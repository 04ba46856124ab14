package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pf-aics-riken/mpispawner/internal/config"
	"github.com/pf-aics-riken/mpispawner/internal/events"
	"github.com/pf-aics-riken/mpispawner/internal/queue"
	"github.com/pf-aics-riken/mpispawner/internal/scheduler/mocks"
	"github.com/pf-aics-riken/mpispawner/internal/spawn"
)

// TestLogBuffer is a bytes.Buffer that can be used to capture log output.
type TestLogBuffer struct {
	bytes.Buffer
}

// NewTestSlogger creates a new *slog.Logger that writes to a TestLogBuffer.
func NewTestSlogger() (*slog.Logger, *TestLogBuffer) {
	var buf TestLogBuffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), &buf
}

// testLayout places "small" on ranks 1-2 and "large" on ranks 3-6.
func testLayout(t *testing.T) *config.Layout {
	t.Helper()
	cfg := &config.Config{
		Cluster: config.ClusterConfig{Size: 7},
		Subworlds: []config.SubworldConfig{
			{Name: "small", GroupSize: 2, Groups: 1},
			{Name: "large", GroupSize: 4, Groups: 1},
		},
	}
	layout, err := cfg.Layout()
	require.NoError(t, err)
	return layout
}

func allIdle() []int { return []int{1, 2, 3, 4, 5, 6} }

func TestScheduleEmptyQueueTerminatesIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, logBuf := NewTestSlogger()
	s := New(testLayout(t), mockQueue, events.NewHub(32), 0, slogger)
	ctx := context.Background()

	mockQueue.EXPECT().Next(ctx).Return(nil, nil)

	out, err := s.Schedule(ctx, allIdle())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Work)
	assert.Equal(t, allIdle(), out[0].Ranks)
	assert.Contains(t, logBuf.String(), "Queue drained")
}

func TestSchedulePlacesJobsInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, logBuf := NewTestSlogger()
	layout := testLayout(t)
	s := New(layout, mockQueue, events.NewHub(32), 0, slogger)
	ctx := context.Background()

	job1 := &queue.Job{ID: "job1", Subworld: "large", NProcs: 3, Args: "echo  hi", Trace: true}
	job2 := &queue.Job{ID: "job2", Subworld: "small", NProcs: 2, Args: "true"}
	job3 := &queue.Job{ID: "job3", Subworld: "small", NProcs: 1, Args: "true"}

	gomock.InOrder(
		mockQueue.EXPECT().Next(ctx).Return(job1, nil),
		mockQueue.EXPECT().Start(ctx, "job1", []int{3, 4, 5, 6}).Return(nil),
		mockQueue.EXPECT().Next(ctx).Return(job2, nil),
		mockQueue.EXPECT().Start(ctx, "job2", []int{1, 2}).Return(nil),
		mockQueue.EXPECT().Next(ctx).Return(job3, nil),
	)

	out, err := s.Schedule(ctx, allIdle())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "job1", out[0].JobID)
	assert.Equal(t, []int{3, 4, 5, 6}, out[0].Ranks)
	require.NotNil(t, out[0].Work)
	assert.Equal(t, int32(1), out[0].Work.Subworld)
	assert.Equal(t, layout.Groups[1].Color, out[0].Work.Color)
	assert.Equal(t, int32(3), out[0].Work.NProcs)
	assert.True(t, out[0].Work.Trace)
	assert.Equal(t, []byte("echo\x00hi\x00"), out[0].Work.Args)

	assert.Equal(t, "job2", out[1].JobID)
	assert.Equal(t, int32(0), out[1].Work.Subworld)
	assert.Equal(t, 2, s.Running())
	assert.Contains(t, logBuf.String(), "No idle group for job")
}

func TestScheduleWaitsForWholeGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, _ := NewTestSlogger()
	s := New(testLayout(t), mockQueue, events.NewHub(32), 0, slogger)
	ctx := context.Background()

	job := &queue.Job{ID: "job1", Subworld: "small", NProcs: 1}
	mockQueue.EXPECT().Next(ctx).Return(job, nil)

	out, err := s.Schedule(ctx, []int{1})
	require.NoError(t, err)
	assert.Empty(t, out, "rank 2 has not announced itself and the queue is not empty")
}

func TestScheduleFailsUnplaceableJobs(t *testing.T) {
	tests := []struct {
		name   string
		job    *queue.Job
		reason string
	}{
		{name: "unknown subworld", job: &queue.Job{ID: "j", Subworld: "medium", NProcs: 1}, reason: "no subworld named"},
		{name: "too many processes", job: &queue.Job{ID: "j", Subworld: "small", NProcs: 3}, reason: "has 3 ranks"},
		{name: "args too large", job: &queue.Job{ID: "j", Subworld: "small", NProcs: 1, Args: "0123456789"}, reason: "byte limit"},
		{name: "packed args too large", job: &queue.Job{ID: "j", Subworld: "small", NProcs: 1, Args: "01234567"}, reason: "9 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockQueue := mocks.NewMockQueueService(ctrl)
			slogger, logBuf := NewTestSlogger()
			s := New(testLayout(t), mockQueue, events.NewHub(32), 8, slogger)
			ctx := context.Background()

			gomock.InOrder(
				mockQueue.EXPECT().Next(ctx).Return(tt.job, nil),
				mockQueue.EXPECT().Complete(ctx, "j", queue.StatusFailed, int(spawn.StatusIntegrity), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ string, _ queue.Status, _ int, lastError *string) error {
						require.NotNil(t, lastError)
						assert.Contains(t, *lastError, tt.reason)
						return nil
					}),
				mockQueue.EXPECT().Next(ctx).Return(nil, nil),
			)

			out, err := s.Schedule(ctx, allIdle())
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Nil(t, out[0].Work)
			assert.Contains(t, logBuf.String(), "Failing job that can never be placed")
		})
	}
}

func TestScheduleNextError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, _ := NewTestSlogger()
	s := New(testLayout(t), mockQueue, events.NewHub(32), 0, slogger)
	ctx := context.Background()

	mockQueue.EXPECT().Next(ctx).Return(nil, errors.New("db error"))

	_, err := s.Schedule(ctx, allIdle())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch next job: db error")
}

func TestCompletedAggregatesReports(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []int32
		wantStatus queue.Status
		wantExit   int
		wantEvent  string
	}{
		{name: "all zero succeeds", statuses: []int32{0, 0}, wantStatus: queue.StatusSucceeded, wantExit: 0, wantEvent: events.JobCompleted},
		{name: "first nonzero wins", statuses: []int32{0, 3}, wantStatus: queue.StatusFailed, wantExit: 3, wantEvent: events.JobFailed},
		{name: "earlier failure kept", statuses: []int32{7, 3}, wantStatus: queue.StatusFailed, wantExit: 7, wantEvent: events.JobFailed},
		{name: "integrity failure", statuses: []int32{spawn.StatusIntegrity, spawn.StatusIntegrity}, wantStatus: queue.StatusFailed, wantExit: int(spawn.StatusIntegrity), wantEvent: events.JobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockQueue := mocks.NewMockQueueService(ctrl)
			slogger, _ := NewTestSlogger()
			hub := events.NewHub(32)
			sub, cancel := hub.Subscribe()
			defer cancel()
			s := New(testLayout(t), mockQueue, hub, 0, slogger)
			ctx := context.Background()

			job := &queue.Job{ID: "job1", Subworld: "small", NProcs: 2}
			gomock.InOrder(
				mockQueue.EXPECT().Next(ctx).Return(job, nil),
				mockQueue.EXPECT().Start(ctx, "job1", []int{1, 2}).Return(nil),
				mockQueue.EXPECT().Next(ctx).Return(nil, nil),
			)
			_, err := s.Schedule(ctx, []int{1, 2})
			require.NoError(t, err)

			mockQueue.EXPECT().Report(ctx, "job1", 1, tt.statuses[0]).Return(nil)
			mockQueue.EXPECT().Report(ctx, "job1", 2, tt.statuses[1]).Return(nil)
			if tt.wantStatus == queue.StatusSucceeded {
				mockQueue.EXPECT().Complete(ctx, "job1", tt.wantStatus, tt.wantExit, gomock.Nil()).Return(nil)
			} else {
				mockQueue.EXPECT().Complete(ctx, "job1", tt.wantStatus, tt.wantExit, gomock.Not(gomock.Nil())).Return(nil)
			}

			require.NoError(t, s.Completed(ctx, spawn.Report{Rank: 1, JobID: "job1", Status: tt.statuses[0]}))
			assert.Equal(t, 1, s.Running())
			require.NoError(t, s.Completed(ctx, spawn.Report{Rank: 2, JobID: "job1", Status: tt.statuses[1]}))
			assert.Equal(t, 0, s.Running())

			ev := <-sub
			assert.Equal(t, tt.wantEvent, ev.Type)
		})
	}
}

func TestCompletedUnknownJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	slogger, _ := NewTestSlogger()
	s := New(testLayout(t), mocks.NewMockQueueService(ctrl), nil, 0, slogger)

	err := s.Completed(context.Background(), spawn.Report{Rank: 1, JobID: "ghost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job")
}

func TestCompletedFreesGroupForNextJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockQueue := mocks.NewMockQueueService(ctrl)
	slogger, _ := NewTestSlogger()
	s := New(testLayout(t), mockQueue, events.NewHub(32), 0, slogger)
	ctx := context.Background()

	job1 := &queue.Job{ID: "job1", Subworld: "small", NProcs: 1}
	job2 := &queue.Job{ID: "job2", Subworld: "small", NProcs: 1}

	gomock.InOrder(
		mockQueue.EXPECT().Next(ctx).Return(job1, nil),
		mockQueue.EXPECT().Start(ctx, "job1", []int{1, 2}).Return(nil),
		mockQueue.EXPECT().Next(ctx).Return(job2, nil),
	)
	out, err := s.Schedule(ctx, []int{1, 2})
	require.NoError(t, err)
	require.Len(t, out, 1)

	mockQueue.EXPECT().Report(ctx, "job1", 1, int32(0)).Return(nil)
	mockQueue.EXPECT().Report(ctx, "job1", 2, int32(0)).Return(nil)
	mockQueue.EXPECT().Complete(ctx, "job1", queue.StatusSucceeded, 0, gomock.Nil()).Return(nil)
	require.NoError(t, s.Completed(ctx, spawn.Report{Rank: 1, JobID: "job1"}))
	require.NoError(t, s.Completed(ctx, spawn.Report{Rank: 2, JobID: "job1"}))

	gomock.InOrder(
		mockQueue.EXPECT().Next(ctx).Return(job2, nil),
		mockQueue.EXPECT().Start(ctx, "job2", []int{1, 2}).Return(nil),
		mockQueue.EXPECT().Next(ctx).Return(nil, nil),
	)
	out, err = s.Schedule(ctx, []int{1, 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "job2", out[0].JobID)
}
