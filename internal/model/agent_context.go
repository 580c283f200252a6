package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxFocusCheckpoints bounds the checkpoint trail kept on a context
const MaxFocusCheckpoints = 10

// ConversationTurn is one entry in the run's conversation history
type ConversationTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentContext is the per-run working memory of the pipeline.
//
// Fields are unexported so the checkpoint cap and progress clamp can't be
// bypassed; JSON encoding goes through agentContextJSON.
type AgentContext struct {
	sessionID        string
	history          []ConversationTurn
	currentIntent    string
	taskProgress     float64
	establishedKey   *MusicalKey
	establishedTempo *BpmTempo
	establishedGenre *Genre
	focusCheckpoints []string
}

// NewAgentContext creates an empty context with a fresh session id
func NewAgentContext() *AgentContext {
	return &AgentContext{sessionID: uuid.New().String()}
}

func (c *AgentContext) SessionID() string     { return c.sessionID }
func (c *AgentContext) CurrentIntent() string { return c.currentIntent }
func (c *AgentContext) TaskProgress() float64 { return c.taskProgress }

// History returns a copy of the conversation turns
func (c *AgentContext) History() []ConversationTurn {
	out := make([]ConversationTurn, len(c.history))
	copy(out, c.history)
	return out
}

// FocusCheckpoints returns a copy of the checkpoint trail, oldest first
func (c *AgentContext) FocusCheckpoints() []string {
	out := make([]string, len(c.focusCheckpoints))
	copy(out, c.focusCheckpoints)
	return out
}

func (c *AgentContext) EstablishedKey() (MusicalKey, bool) {
	if c.establishedKey == nil {
		return MusicalKey{}, false
	}
	return *c.establishedKey, true
}

func (c *AgentContext) EstablishedTempo() (BpmTempo, bool) {
	if c.establishedTempo == nil {
		return 0, false
	}
	return *c.establishedTempo, true
}

func (c *AgentContext) EstablishedGenre() (Genre, bool) {
	if c.establishedGenre == nil {
		return "", false
	}
	return *c.establishedGenre, true
}

// AddTurn appends a conversation turn
func (c *AgentContext) AddTurn(role, content string) {
	c.history = append(c.history, ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// SetIntent records the last classified intent
func (c *AgentContext) SetIntent(intent string) {
	c.currentIntent = intent
	c.AddCheckpoint("Intent: " + intent)
}

// UpdateProgress clamps p into [0, 1]
func (c *AgentContext) UpdateProgress(p float64) {
	c.taskProgress = clampProgress(p)
}

// EstablishMusicalContext pins key, tempo and genre for prompt construction
func (c *AgentContext) EstablishMusicalContext(key MusicalKey, tempo BpmTempo, genre Genre) {
	c.establishedKey = &key
	c.establishedTempo = &tempo
	c.establishedGenre = &genre
	c.AddCheckpoint(fmt.Sprintf("Established: %s, %s, %s", key, tempo, genre))
}

// AddCheckpoint appends to the trail, evicting the oldest beyond the cap
func (c *AgentContext) AddCheckpoint(checkpoint string) {
	c.focusCheckpoints = append(c.focusCheckpoints, checkpoint)
	if over := len(c.focusCheckpoints) - MaxFocusCheckpoints; over > 0 {
		c.focusCheckpoints = append([]string(nil), c.focusCheckpoints[over:]...)
	}
}

// PromptContext renders the sticky context block prepended to provider prompts
func (c *AgentContext) PromptContext() string {
	var sb strings.Builder
	if c.establishedGenre != nil {
		fmt.Fprintf(&sb, "Genre: %s\n", *c.establishedGenre)
	}
	if c.establishedKey != nil {
		fmt.Fprintf(&sb, "Key: %s\n", *c.establishedKey)
	}
	if c.establishedTempo != nil {
		fmt.Fprintf(&sb, "Tempo: %s\n", *c.establishedTempo)
	}
	if c.currentIntent != "" {
		fmt.Fprintf(&sb, "Current intent: %s\n", c.currentIntent)
	}
	if n := len(c.focusCheckpoints); n > 0 {
		start := n - 3
		if start < 0 {
			start = 0
		}
		fmt.Fprintf(&sb, "Focus: %s\n", strings.Join(c.focusCheckpoints[start:], "; "))
	}

	if sb.Len() == 0 {
		return "No context established."
	}
	return strings.TrimRight(sb.String(), "\n")
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

type agentContextJSON struct {
	SessionID        string             `json:"sessionId"`
	History          []ConversationTurn `json:"history"`
	CurrentIntent    string             `json:"currentIntent,omitempty"`
	TaskProgress     float64            `json:"taskProgress"`
	EstablishedKey   *MusicalKey        `json:"establishedKey,omitempty"`
	EstablishedTempo *BpmTempo          `json:"establishedTempo,omitempty"`
	EstablishedGenre *Genre             `json:"establishedGenre,omitempty"`
	FocusCheckpoints []string           `json:"focusCheckpoints"`
}

func (c *AgentContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(agentContextJSON{
		SessionID:        c.sessionID,
		History:          c.history,
		CurrentIntent:    c.currentIntent,
		TaskProgress:     c.taskProgress,
		EstablishedKey:   c.establishedKey,
		EstablishedTempo: c.establishedTempo,
		EstablishedGenre: c.establishedGenre,
		FocusCheckpoints: c.focusCheckpoints,
	})
}

func (c *AgentContext) UnmarshalJSON(data []byte) error {
	var raw agentContextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.sessionID = raw.SessionID
	if c.sessionID == "" {
		c.sessionID = uuid.New().String()
	}
	c.history = raw.History
	c.currentIntent = raw.CurrentIntent
	c.taskProgress = clampProgress(raw.TaskProgress)
	c.establishedKey = raw.EstablishedKey
	c.establishedTempo = raw.EstablishedTempo
	c.establishedGenre = raw.EstablishedGenre
	c.focusCheckpoints = nil
	for _, cp := range raw.FocusCheckpoints {
		c.AddCheckpoint(cp)
	}
	return nil
}
