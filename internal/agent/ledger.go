package agent

import (
	"sync"
	"time"
)

// Snapshot is one versioned view of a run's progress
type Snapshot struct {
	RunID     string    `json:"runId"`
	Stage     Stage     `json:"stage"`
	Component string    `json:"component"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ledgerHistory is how many snapshots a ledger retains for Since
const ledgerHistory = 64

// Ledger records the progress snapshots of one run, oldest first. Observers
// wait on the channel returned by since, which is closed on the next update.
type Ledger struct {
	mu      sync.Mutex
	log     []Snapshot
	changed chan struct{}
}

func newLedger(runID string) *Ledger {
	return &Ledger{
		log: []Snapshot{{
			RunID:     runID,
			Stage:     StageIdle,
			Component: StageIdle.Label(),
			Message:   "Starting...",
			UpdatedAt: time.Now().UTC(),
		}},
		changed: make(chan struct{}),
	}
}

// Snapshot returns the current snapshot
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.log[len(l.log)-1]
}

// Update records a new snapshot and wakes every waiting observer
func (l *Ledger) Update(stage Stage, message string, progress float64) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.log[len(l.log)-1]
	snap.Stage = stage
	snap.Component = stage.Label()
	snap.Message = message
	snap.Progress = progress
	snap.Version++
	snap.UpdatedAt = time.Now().UTC()

	l.log = append(l.log, snap)
	if len(l.log) > ledgerHistory {
		l.log = append([]Snapshot(nil), l.log[len(l.log)-ledgerHistory:]...)
	}

	close(l.changed)
	l.changed = make(chan struct{})
	return snap
}

// Since returns the retained snapshots newer than version, oldest first
func (l *Ledger) Since(version uint64) []Snapshot {
	snaps, _ := l.since(version)
	return snaps
}

func (l *Ledger) since(version uint64) ([]Snapshot, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Snapshot
	for _, snap := range l.log {
		if snap.Version > version {
			out = append(out, snap)
		}
	}
	return out, l.changed
}
