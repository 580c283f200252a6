package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_UpdateBumpsVersionAndWakes(t *testing.T) {
	l := newLedger("run-1")

	snap := l.Snapshot()
	assert.Equal(t, uint64(0), snap.Version)
	assert.Equal(t, StageIdle, snap.Stage)
	assert.Equal(t, "Starting...", snap.Message)

	pending, changed := l.since(0)
	assert.Empty(t, pending)

	got := l.Update(StageComposing, "Creating chord progression", 0.2)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, "Composing", got.Component)

	select {
	case <-changed:
	default:
		t.Fatal("expected change notification")
	}

	assert.Equal(t, got, l.Snapshot())
	assert.Equal(t, []Snapshot{got}, l.Since(0))
}

func TestLedger_SinceReturnsEveryNewerVersion(t *testing.T) {
	l := newLedger("run-1")
	l.Update(StageUnderstanding, "Understanding request", 0.1)
	l.Update(StageComposing, "Creating chord progression", 0.2)
	l.Update(StageSynthesizingAudio, "Generating drums", 0.4)

	snaps := l.Since(1)
	require.Len(t, snaps, 2)
	assert.Equal(t, uint64(2), snaps[0].Version)
	assert.Equal(t, StageComposing, snaps[0].Stage)
	assert.Equal(t, uint64(3), snaps[1].Version)
	assert.Equal(t, "Generating drums", snaps[1].Message)

	assert.Len(t, l.Since(0), 3)
	assert.Empty(t, l.Since(3))
}

func TestLedger_HistoryIsBounded(t *testing.T) {
	l := newLedger("run-1")
	for i := 0; i < ledgerHistory+10; i++ {
		l.Update(StageSynthesizingAudio, "tick", 0.5)
	}

	snaps := l.Since(0)
	require.Len(t, snaps, ledgerHistory)
	assert.Equal(t, uint64(11), snaps[0].Version)
	assert.Equal(t, uint64(ledgerHistory+10), snaps[len(snaps)-1].Version)
	assert.Equal(t, snaps[len(snaps)-1], l.Snapshot())
}

func TestRegistry_BeginRejectsActiveRun(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	l, m, err := r.Begin("run-1")
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NotNil(t, m)

	_, _, err = r.Begin("run-1")
	assert.ErrorIs(t, err, ErrRunInProgress)

	l.Update(StageComplete, "done", 1)
	l2, m2, err := r.Begin("run-1")
	require.NoError(t, err)
	assert.NotSame(t, l, l2)
	assert.Same(t, m, m2)
}

func TestRegistry_ReleaseOnlyCurrentLedger(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	old, _, err := r.Begin("run-1")
	require.NoError(t, err)
	old.Update(StageError, "boom", 0)

	current, _, err := r.Begin("run-1")
	require.NoError(t, err)

	r.Release("run-1", old)
	got, ok := r.Ledger("run-1")
	require.True(t, ok)
	assert.Same(t, current, got)

	r.Release("run-1", current)
	_, ok = r.Ledger("run-1")
	assert.False(t, ok)

	// the machine outlives its ledger
	_, ok = r.Machine("run-1")
	assert.True(t, ok)
}

func backdate(r *Registry, runID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[runID]
	e.touched = at
	if e.ledger != nil {
		e.ledger.mu.Lock()
		e.ledger.log[len(e.ledger.log)-1].UpdatedAt = at
		e.ledger.mu.Unlock()
	}
}

func TestRegistry_SweepEvictsIdleEntries(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	stale, _, err := r.Begin("stale")
	require.NoError(t, err)
	stale.Update(StageComplete, "Generation finished", 1)
	fresh, _, err := r.Begin("fresh")
	require.NoError(t, err)

	now := time.Now().UTC()
	backdate(r, "stale", now.Add(-2*time.Minute))
	fresh.Update(StageComplete, "Generation finished", 1)

	assert.Equal(t, 1, r.Sweep(now))

	_, ok := r.Ledger("stale")
	assert.False(t, ok)
	_, ok = r.Machine("stale")
	assert.False(t, ok)
	_, ok = r.Ledger("fresh")
	assert.True(t, ok)
}

func TestRegistry_SweepKeepsLiveRuns(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	live, _, err := r.Begin("live")
	require.NoError(t, err)
	live.Update(StageSynthesizingAudio, "Generating drums", 0.4)

	now := time.Now().UTC()
	backdate(r, "live", now.Add(-time.Hour))

	assert.Equal(t, 0, r.Sweep(now))
	_, ok := r.Ledger("live")
	assert.True(t, ok)

	_, _, err = r.Begin("live")
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRegistry_SweepEvictsReleasedRuns(t *testing.T) {
	r := NewRegistry(time.Minute, nil)

	l, _, err := r.Begin("done")
	require.NoError(t, err)
	l.Update(StageError, "boom", 0)
	r.Release("done", l)

	now := time.Now().UTC()
	backdate(r, "done", now.Add(-2*time.Minute))

	assert.Equal(t, 1, r.Sweep(now))
	_, ok := r.Machine("done")
	assert.False(t, ok)
}

func TestRegistry_RunStopsOnCancel(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
