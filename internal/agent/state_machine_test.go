package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/makeasinger/musicforge/internal/model"
)

func TestCanTransition_Matrix(t *testing.T) {
	for _, from := range AllStages() {
		for _, to := range AllStages() {
			_, listed := allowedTransitions[from][to]
			want := listed || to == from || to == StageError || to == StageIdle
			assert.Equal(t, want, canTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_Examples(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageIdle, StageUnderstanding, true},
		{StageIdle, StagePlanning, true},
		{StageIdle, StageMixing, false},
		{StageSynthesizingAudio, StageMixing, true},
		{StageMastering, StageExporting, true},
		{StageComplete, StageComposing, false},
		{StageIterating, StageGeneratingMidi, true},
		{StageMixing, StageError, true},
		{StageError, StagePlanning, true},
		{StageError, StageMixing, false},
		{StageAwaitingFeedback, StageAwaitingFeedback, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestStateMachine_TransitionRecordsHistory(t *testing.T) {
	m := NewStateMachine(nil)
	rc := model.NewAgentContext()

	assert.Equal(t, StageIdle, m.Current())
	require.Len(t, m.History(), 1)

	got, err := m.TransitionTo(StagePlanning, rc)
	require.NoError(t, err)
	assert.Equal(t, StagePlanning, got)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, StageIdle, history[0].Stage)
	assert.Equal(t, StagePlanning, history[1].Stage)
	assert.False(t, history[1].At.Before(history[0].At))
}

func TestStateMachine_SelfTransitionIsNoop(t *testing.T) {
	m := NewStateMachine(nil)

	got, err := m.TransitionTo(StageIdle, nil)
	require.NoError(t, err)
	assert.Equal(t, StageIdle, got)
	assert.Len(t, m.History(), 1)
}

func TestStateMachine_IllegalTransition(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewStateMachine(zap.New(core))

	got, err := m.TransitionTo(StageMastering, nil)
	require.Error(t, err)
	assert.Equal(t, StageIdle, got)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	var ite *IllegalTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StageIdle, ite.From)
	assert.Equal(t, StageMastering, ite.To)

	assert.Equal(t, StageIdle, m.Current())
	assert.Len(t, m.History(), 1)

	warnings := logs.FilterMessage("invalid stage transition").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
}

func TestStateMachine_ErrorAndIdleAlwaysReachable(t *testing.T) {
	for _, from := range AllStages() {
		assert.True(t, canTransition(from, StageError), "%s -> error", from)
		assert.True(t, canTransition(from, StageIdle), "%s -> idle", from)
	}
}

func TestStateMachine_AutoAdvanceFullChain(t *testing.T) {
	m := NewStateMachine(nil)
	rc := model.NewAgentContext()

	// idle without intent stays put
	got, err := m.AutoAdvance(rc)
	require.NoError(t, err)
	assert.Equal(t, StageIdle, got)

	rc.SetIntent("generate")
	want := []Stage{
		StageUnderstanding,
		StagePlanning,
		StageComposing,
		StageGeneratingMidi,
		StageSynthesizingAudio,
		StageSynthesizingVocals,
		StageMixing,
		StageMastering,
		StageComplete,
		StageAwaitingFeedback,
	}
	for _, stage := range want {
		got, err := m.AutoAdvance(rc)
		require.NoError(t, err)
		assert.Equal(t, stage, got)
	}

	// awaiting feedback requires an explicit transition
	got, err = m.AutoAdvance(rc)
	require.NoError(t, err)
	assert.Equal(t, StageAwaitingFeedback, got)
	assert.Len(t, m.History(), len(want)+1)
}

func TestStateMachine_AutoAdvanceSpecialCases(t *testing.T) {
	t.Run("iterating goes to mixing", func(t *testing.T) {
		m := NewStateMachine(nil)
		m.current = StageIterating
		got, err := m.AutoAdvance(nil)
		require.NoError(t, err)
		assert.Equal(t, StageMixing, got)
	})

	t.Run("exporting goes to complete", func(t *testing.T) {
		m := NewStateMachine(nil)
		m.current = StageExporting
		got, err := m.AutoAdvance(nil)
		require.NoError(t, err)
		assert.Equal(t, StageComplete, got)
	})

	t.Run("error stays", func(t *testing.T) {
		m := NewStateMachine(nil)
		_, err := m.TransitionTo(StageError, nil)
		require.NoError(t, err)
		got, err := m.AutoAdvance(model.NewAgentContext())
		require.NoError(t, err)
		assert.Equal(t, StageError, got)
	})

	t.Run("nil context at idle stays", func(t *testing.T) {
		m := NewStateMachine(nil)
		got, err := m.AutoAdvance(nil)
		require.NoError(t, err)
		assert.Equal(t, StageIdle, got)
	})
}

func TestStateMachine_Reset(t *testing.T) {
	m := NewStateMachine(nil)
	_, err := m.TransitionTo(StagePlanning, nil)
	require.NoError(t, err)
	_, err = m.TransitionTo(StageComposing, nil)
	require.NoError(t, err)

	m.Reset()

	assert.Equal(t, StageIdle, m.Current())
	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, StageIdle, history[0].Stage)
}

func TestStateMachine_HistoryIsCopy(t *testing.T) {
	m := NewStateMachine(nil)
	h := m.History()
	h[0].Stage = StageMixing
	assert.Equal(t, StageIdle, m.History()[0].Stage)
}

func TestStage_Helpers(t *testing.T) {
	assert.Len(t, AllStages(), 14)
	assert.True(t, StageComplete.Terminal())
	assert.True(t, StageError.Terminal())
	assert.False(t, StageAwaitingFeedback.Terminal())
	assert.Equal(t, "rendering", Stage("rendering").Label())
	assert.Equal(t, "SynthesizingVocals", StageSynthesizingVocals.Label())
}
