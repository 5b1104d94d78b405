package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcraft/internal/dispatch"
	"feedcraft/internal/domain"
	"feedcraft/internal/store"
)

type memSource struct {
	mu     sync.Mutex
	jobs   []dispatch.Job
	buried []dispatch.Job
}

func (s *memSource) Enqueue(ctx context.Context, job dispatch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *memSource) Dequeue(ctx context.Context, timeout time.Duration) (*dispatch.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil, nil
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	return &job, nil
}

func (s *memSource) Bury(ctx context.Context, job dispatch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buried = append(s.buried, job)
	return nil
}

type performerFunc func(ctx context.Context, job dispatch.Job) (*dispatch.Result, error)

func (f performerFunc) Perform(ctx context.Context, job dispatch.Job) (*dispatch.Result, error) {
	return f(ctx, job)
}

func job(id string) dispatch.Job {
	return dispatch.RouteJob(store.ActivityRecord{ID: id, Kind: "follow_buddy", At: time.Now().UTC()})
}

func TestWorker_Process(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		attempt     int
		wantQueued  int
		wantBuried  int
		wantAttempt int
	}{
		{"success", nil, 0, 0, 0, 0},
		{"transient failure retried", errors.New("connection reset"), 0, 1, 0, 1},
		{"attempts exhausted", errors.New("connection reset"), 2, 0, 1, 3},
		{"permanent failure buried", &domain.UnknownKindError{Family: "activity", Kind: "gone"}, 0, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &memSource{}
			w := NewWorker(src, performerFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Result, error) {
				return &dispatch.Result{}, tt.err
			}), WorkerOptions{MaxAttempts: 3})

			j := job("a1")
			j.Attempt = tt.attempt
			require.NoError(t, w.Process(context.Background(), j))

			assert.Len(t, src.jobs, tt.wantQueued)
			assert.Len(t, src.buried, tt.wantBuried)
			for _, settled := range append(src.jobs, src.buried...) {
				assert.Equal(t, tt.wantAttempt, settled.Attempt)
			}
		})
	}
}

func TestWorker_ProcessSplitsRouteFailures(t *testing.T) {
	src := &memSource{}
	w := NewWorker(src, performerFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Result, error) {
		res := &dispatch.Result{Stored: 1, Errors: []error{
			&dispatch.RouteError{Timeline: "crowd_feed", Route: "actor", Recipient: "u1",
				Err: &domain.MissingEntityError{Kind: "follow_buddy", Entity: "buddy"}},
			&dispatch.RouteError{Timeline: "crowd_feed", Route: "buddy", Recipient: "u2",
				Err: errors.New("connection reset")},
		}}
		return res, res.Err()
	}), WorkerOptions{MaxAttempts: 3})

	require.NoError(t, w.Process(context.Background(), job("a1")))

	require.Len(t, src.jobs, 1)
	retried := src.jobs[0]
	assert.Equal(t, dispatch.JobTimelineHandle, retried.Type)
	assert.Equal(t, "crowd_feed", retried.TimelineKind)
	assert.Equal(t, "buddy", retried.RouteKind)
	assert.Equal(t, "u2", retried.RecipientID)
	assert.Equal(t, "a1", retried.Activity.ID)
	assert.Equal(t, 1, retried.Attempt)

	require.Len(t, src.buried, 1)
	assert.Equal(t, dispatch.JobTimelineHandle, src.buried[0].Type)
	assert.Equal(t, "u1", src.buried[0].RecipientID)
}

func TestWorker_ProcessRetriesUnresolvedRoute(t *testing.T) {
	src := &memSource{}
	w := NewWorker(src, performerFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Result, error) {
		res := &dispatch.Result{Errors: []error{
			&dispatch.RouteError{Timeline: "crowd_feed", Route: "followers", Err: errors.New("timeout")},
			&dispatch.RouteError{Timeline: "crowd_feed", Route: "actor", Recipient: "u1",
				Err: domain.Configf("crowd_feed", "bad route")},
		}}
		return res, res.Err()
	}), WorkerOptions{MaxAttempts: 3})

	require.NoError(t, w.Process(context.Background(), job("a1")))

	require.Len(t, src.jobs, 1)
	assert.Equal(t, dispatch.JobRouteActivity, src.jobs[0].Type)
	assert.Equal(t, 1, src.jobs[0].Attempt)
	require.Len(t, src.buried, 1)
	assert.Equal(t, "u1", src.buried[0].RecipientID)
}

func TestWorker_RunDrainsUntilCancelled(t *testing.T) {
	src := &memSource{jobs: []dispatch.Job{job("a1"), job("a2"), job("a3")}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	w := NewWorker(src, performerFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Activity.ID)
		if len(seen) == 3 {
			cancel()
		}
		return &dispatch.Result{Stored: 1}, nil
	}), WorkerOptions{Poll: time.Millisecond})

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, []string{"a1", "a2", "a3"}, seen)
}
