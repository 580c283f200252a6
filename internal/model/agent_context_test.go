package model

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentContext_CheckpointsKeepNewest(t *testing.T) {
	c := NewAgentContext()
	for i := 0; i < MaxFocusCheckpoints+5; i++ {
		c.AddCheckpoint(fmt.Sprintf("cp-%d", i))
	}

	cps := c.FocusCheckpoints()
	require.Len(t, cps, MaxFocusCheckpoints)
	assert.Equal(t, "cp-5", cps[0])
	assert.Equal(t, fmt.Sprintf("cp-%d", MaxFocusCheckpoints+4), cps[len(cps)-1])

	cps[0] = "mutated"
	assert.Equal(t, "cp-5", c.FocusCheckpoints()[0])
}

func TestAgentContext_ProgressClamped(t *testing.T) {
	c := NewAgentContext()

	c.UpdateProgress(-0.5)
	assert.Equal(t, 0.0, c.TaskProgress())
	c.UpdateProgress(0.42)
	assert.Equal(t, 0.42, c.TaskProgress())
	c.UpdateProgress(3)
	assert.Equal(t, 1.0, c.TaskProgress())
}

func TestAgentContext_PromptContext(t *testing.T) {
	c := NewAgentContext()
	assert.Equal(t, "No context established.", c.PromptContext())

	c.EstablishMusicalContext(MusicalKey{Root: NoteA, Mode: ModeMinor}, 118, GenreElectronic)
	c.SetIntent("generate")

	out := c.PromptContext()
	assert.Contains(t, out, "Genre: electronic")
	assert.Contains(t, out, "Key: A Minor")
	assert.Contains(t, out, "Tempo: 118 BPM")
	assert.Contains(t, out, "Current intent: generate")
	assert.Contains(t, out, "Focus: ")
}

func TestAgentContext_JSONRoundTrip(t *testing.T) {
	c := NewAgentContext()
	c.AddTurn("user", "make it darker")
	c.AddTurn("assistant", "lowering the pad")
	c.EstablishMusicalContext(CMajor, 100, GenrePop)
	c.SetIntent("iterate")
	c.UpdateProgress(0.6)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded AgentContext
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, c.SessionID(), decoded.SessionID())
	assert.Equal(t, "iterate", decoded.CurrentIntent())
	assert.Equal(t, 0.6, decoded.TaskProgress())
	assert.Equal(t, c.FocusCheckpoints(), decoded.FocusCheckpoints())
	require.Len(t, decoded.History(), 2)
	assert.Equal(t, "make it darker", decoded.History()[0].Content)

	key, ok := decoded.EstablishedKey()
	require.True(t, ok)
	assert.Equal(t, CMajor, key)
	tempo, ok := decoded.EstablishedTempo()
	require.True(t, ok)
	assert.Equal(t, BpmTempo(100), tempo)
	genre, ok := decoded.EstablishedGenre()
	require.True(t, ok)
	assert.Equal(t, GenrePop, genre)
}

func TestAgentContext_UnmarshalEnforcesInvariants(t *testing.T) {
	checkpoints := make([]string, MaxFocusCheckpoints+3)
	for i := range checkpoints {
		checkpoints[i] = fmt.Sprintf("cp-%d", i)
	}
	raw, err := json.Marshal(map[string]interface{}{
		"taskProgress":     7.5,
		"focusCheckpoints": checkpoints,
	})
	require.NoError(t, err)

	var c AgentContext
	require.NoError(t, json.Unmarshal(raw, &c))

	assert.NotEmpty(t, c.SessionID())
	assert.Equal(t, 1.0, c.TaskProgress())
	assert.Len(t, c.FocusCheckpoints(), MaxFocusCheckpoints)
	assert.Equal(t, "cp-3", c.FocusCheckpoints()[0])
	_, ok := c.EstablishedKey()
	assert.False(t, ok)
}
