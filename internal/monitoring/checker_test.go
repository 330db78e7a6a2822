package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcred/backoffice/internal/model"
	"github.com/nexcred/backoffice/internal/store"
)

type listStore struct {
	store.Store

	jobs []model.BatchJob
	err  error
}

func (s *listStore) ListJobs(_ context.Context, filter store.JobFilter) ([]model.BatchJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []model.BatchJob
	for _, j := range s.jobs {
		if filter.Status == "" || j.Status == filter.Status {
			out = append(out, j)
		}
	}
	return out, nil
}

func TestChecker_FindsStaleJobs(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	st := &listStore{jobs: []model.BatchJob{
		{ID: "old", Status: model.JobStatusProcessing, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "fresh", Status: model.JobStatusProcessing, CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "done", Status: model.JobStatusCompleted, CreatedAt: now.Add(-3 * time.Hour)},
	}}

	c := NewChecker(st, Config{StaleAfter: 30 * time.Minute})
	c.now = func() time.Time { return now }

	stale, err := c.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)
}

func TestChecker_NoStaleJobs(t *testing.T) {
	now := time.Now().UTC()
	st := &listStore{jobs: []model.BatchJob{
		{ID: "fresh", Status: model.JobStatusProcessing, CreatedAt: now},
	}}

	c := NewChecker(st, Config{StaleAfter: time.Hour})

	stale, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestChecker_StoreError(t *testing.T) {
	st := &listStore{err: errors.New("connection refused")}
	c := NewChecker(st, Config{})

	_, err := c.Check(context.Background())
	require.Error(t, err)
}

func TestChecker_Defaults(t *testing.T) {
	c := NewChecker(&listStore{}, Config{})
	assert.Equal(t, 30*time.Minute, c.cfg.StaleAfter)
	assert.Equal(t, 5*time.Minute, c.cfg.Interval)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(&listStore{}, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop on context cancellation")
	}
}
