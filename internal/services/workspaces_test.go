package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWorkspaces(now *time.Time) *Workspaces {
	w := NewWorkspaces(new(MockStorageClient), 2, 10*time.Minute)
	w.now = func() time.Time { return *now }
	return w
}

func TestWorkspaces_GetReusesPerSessionAndProcess(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)

	a := w.Get("s1", "p1", "process-p1")
	assert.Same(t, a, w.Get("s1", "p1", "process-p1"))
	assert.NotSame(t, a, w.Get("s2", "p1", "process-p1"))
	assert.NotSame(t, a, w.Get("s1", "p2", "process-p2"))
	assert.Equal(t, 3, w.Len())
}

func TestWorkspaces_BucketChangeReplacesNavigator(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)

	before := w.Get("s1", "p1", "")
	after := w.Get("s1", "p1", "process-p1")

	assert.NotSame(t, before, after)
	assert.Equal(t, "process-p1", after.Bucket())
	assert.Equal(t, 1, w.Len())
}

func TestWorkspaces_SweepEvictsIdle(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)

	w.Get("s1", "p1", "b1")
	now = now.Add(5 * time.Minute)
	w.Get("s2", "p1", "b1")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, w.Sweep())
	assert.Equal(t, 1, w.Len())

	now = now.Add(time.Hour)
	assert.Equal(t, 1, w.Sweep())
	assert.Zero(t, w.Len())
}

func TestWorkspaces_GetRefreshesIdleClock(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)

	w.Get("s1", "p1", "b1")
	now = now.Add(9 * time.Minute)
	w.Get("s1", "p1", "b1")
	now = now.Add(9 * time.Minute)

	assert.Zero(t, w.Sweep())
}

func TestWorkspaces_DropClosesProcess(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)
	w.Get("s1", "p1", "b1")
	w.Get("s2", "p1", "b1")
	w.Get("s1", "p2", "b2")

	w.Drop("p1")

	assert.Equal(t, 1, w.Len())
}

func TestWorkspaces_RunStopsWithContext(t *testing.T) {
	now := time.Now()
	w := newTestWorkspaces(&now)
	w.Get("s1", "p1", "b1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, w.Len())
}
