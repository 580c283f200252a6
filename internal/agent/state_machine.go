package agent

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/metrics"
	"github.com/makeasinger/musicforge/internal/model"
)

var allowedTransitions = map[Stage]map[Stage]struct{}{
	StageIdle: {
		StageUnderstanding: {},
		StagePlanning:      {},
	},
	StageUnderstanding: {
		StagePlanning: {},
	},
	StagePlanning: {
		StageComposing: {},
	},
	StageComposing: {
		StageGeneratingMidi: {},
	},
	StageGeneratingMidi: {
		StageSynthesizingAudio: {},
	},
	StageSynthesizingAudio: {
		StageSynthesizingVocals: {},
		StageMixing:             {},
	},
	StageSynthesizingVocals: {
		StageMixing: {},
	},
	StageMixing: {
		StageMastering: {},
	},
	StageMastering: {
		StageExporting: {},
		StageComplete:  {},
	},
	StageExporting: {
		StageComplete: {},
	},
	StageComplete: {
		StageAwaitingFeedback: {},
		StageIdle:             {},
	},
	StageAwaitingFeedback: {
		StageIterating: {},
	},
	StageIterating: {
		StagePlanning:       {},
		StageComposing:      {},
		StageMixing:         {},
		StageGeneratingMidi: {},
	},
	StageError: {
		StageIdle:     {},
		StagePlanning: {},
	},
}

// autoNext is the fixed chain followed by AutoAdvance. Stages missing here
// (idle, awaiting_feedback, error) are handled explicitly or stay put.
var autoNext = map[Stage]Stage{
	StageUnderstanding:      StagePlanning,
	StagePlanning:           StageComposing,
	StageComposing:          StageGeneratingMidi,
	StageGeneratingMidi:     StageSynthesizingAudio,
	StageSynthesizingAudio:  StageSynthesizingVocals,
	StageSynthesizingVocals: StageMixing,
	StageMixing:             StageMastering,
	StageMastering:          StageComplete,
	StageExporting:          StageComplete,
	StageComplete:           StageAwaitingFeedback,
	StageIterating:          StageMixing,
}

// StageRecord is one accepted transition
type StageRecord struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

// StateMachine tracks the pipeline stage of a single run
type StateMachine struct {
	mu      sync.RWMutex
	current Stage
	history []StageRecord
	logger  *zap.Logger
	now     func() time.Time
}

// NewStateMachine creates a machine in the idle stage
func NewStateMachine(logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &StateMachine{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	m.current = StageIdle
	m.history = []StageRecord{{Stage: StageIdle, At: m.now()}}
	return m
}

// Current returns the current stage
func (m *StateMachine) Current() Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// History returns a copy of the accepted transitions, oldest first
func (m *StateMachine) History() []StageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StageRecord, len(m.history))
	copy(out, m.history)
	return out
}

// CanTransition reports whether target may follow the current stage
func (m *StateMachine) CanTransition(target Stage) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return canTransition(m.current, target)
}

func canTransition(from, to Stage) bool {
	if to == from || to == StageError || to == StageIdle {
		return true
	}
	_, ok := allowedTransitions[from][to]
	return ok
}

// TransitionTo moves to target. Self-transitions succeed without recording
// history. rc only contributes log fields and may be nil.
func (m *StateMachine) TransitionTo(target Stage, rc *model.AgentContext) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(target, rc)
}

func (m *StateMachine) transitionLocked(target Stage, rc *model.AgentContext) (Stage, error) {
	from := m.current
	if !canTransition(from, target) {
		metrics.IllegalTransitions.Inc()
		m.logger.Warn("invalid stage transition",
			zap.String("from", string(from)),
			zap.String("to", string(target)),
		)
		return from, &IllegalTransitionError{From: from, To: target}
	}
	if target == from {
		return from, nil
	}

	m.current = target
	m.history = append(m.history, StageRecord{Stage: target, At: m.now()})
	metrics.StageTransitions.WithLabelValues(string(from), string(target)).Inc()

	fields := []zap.Field{
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	}
	if rc != nil {
		fields = append(fields, zap.String("session_id", rc.SessionID()))
	}
	m.logger.Info("stage transition", fields...)

	return target, nil
}

// AutoAdvance moves one step along the fixed pipeline chain
func (m *StateMachine) AutoAdvance(rc *model.AgentContext) (Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current
	switch m.current {
	case StageIdle:
		if rc != nil && rc.CurrentIntent() != "" {
			next = StageUnderstanding
		}
	case StageAwaitingFeedback, StageError:
		// explicit transition required
	default:
		if n, ok := autoNext[m.current]; ok {
			next = n
		}
	}

	return m.transitionLocked(next, rc)
}

// Reset returns the machine to idle and reseeds the history
func (m *StateMachine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = StageIdle
	m.history = []StageRecord{{Stage: StageIdle, At: m.now()}}
	m.logger.Info("state machine reset")
}
