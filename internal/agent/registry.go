package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/metrics"
)

const DefaultLedgerTTL = 30 * time.Minute

type registryEntry struct {
	ledger  *Ledger
	machine *StateMachine
	touched time.Time
}

func (e *registryEntry) lastActivity() time.Time {
	if e.ledger == nil {
		return e.touched
	}
	if at := e.ledger.Snapshot().UpdatedAt; at.After(e.touched) {
		return at
	}
	return e.touched
}

// Registry maps run ids to their ledger and state machine.
//
// A ledger is released once an observer has received its terminal snapshot.
// Entries idle for longer than the TTL are swept, machine included.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRegistry creates a registry. A non-positive ttl uses DefaultLedgerTTL.
func NewRegistry(ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*registryEntry),
		ttl:     ttl,
		logger:  logger.Named("registry"),
	}
}

// Begin installs a fresh ledger for runID and returns it with the run's
// machine, creating the machine on first use.
func (r *Registry) Begin(runID string) (*Ledger, *StateMachine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[runID]
	if ok && e.ledger != nil && !e.ledger.Snapshot().Stage.Terminal() {
		return nil, nil, ErrRunInProgress
	}
	if !ok {
		e = &registryEntry{
			machine: NewStateMachine(r.logger.With(zap.String("project_id", runID))),
		}
		r.entries[runID] = e
	}
	e.ledger = newLedger(runID)
	e.touched = time.Now().UTC()
	return e.ledger, e.machine, nil
}

// Ledger returns the installed ledger for runID
func (r *Registry) Ledger(runID string) (*Ledger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[runID]
	if !ok || e.ledger == nil {
		return nil, false
	}
	return e.ledger, true
}

// Machine returns the state machine for runID
func (r *Registry) Machine(runID string) (*StateMachine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[runID]
	if !ok {
		return nil, false
	}
	return e.machine, true
}

// Release drops l once its terminal snapshot has been delivered. It is a
// no-op if a newer run already replaced l.
func (r *Registry) Release(runID string, l *Ledger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[runID]
	if !ok || e.ledger != l {
		return
	}
	e.ledger = nil
	e.touched = time.Now().UTC()
	metrics.LedgerEvictions.WithLabelValues("delivered").Inc()
	r.logger.Debug("ledger released", zap.String("project_id", runID))
}

// Sweep evicts entries idle longer than the TTL and returns how many went.
// A run whose ledger has not reached a terminal stage is never evicted.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if e.ledger != nil && !e.ledger.Snapshot().Stage.Terminal() {
			continue
		}
		if now.Sub(e.lastActivity()) <= r.ttl {
			continue
		}
		delete(r.entries, id)
		evicted++
		metrics.LedgerEvictions.WithLabelValues("expired").Inc()
	}
	if evicted > 0 {
		r.logger.Info("swept idle runs", zap.Int("evicted", evicted), zap.Int("remaining", len(r.entries)))
	}
	return evicted
}

// Run sweeps on every tick until ctx is cancelled
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now.UTC())
		}
	}
}
