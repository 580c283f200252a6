package client

import (
	"context"
	"strings"
	"time"
)

// MockChatClient returns canned completions when no LLM key is configured
type MockChatClient struct{}

// Complete returns a deterministic reply shaped like the prompt expects
func (MockChatClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var content string
	switch {
	case strings.Contains(req.SystemPrompt, "JSON"):
		content = `{"style":"warm layered production","structure":["intro","verse","chorus","verse","chorus","outro"],"instruments":["drums","bass","lead","pad"],"mood_progression":"gentle start, lift into the chorus, soft landing"}`
	case strings.Contains(req.Prompt, "chord progression"):
		content = "C - G - Am - F"
	default:
		content = "Raise the energy of the chorus slightly, keep the tempo, brighten the lead and thin out the pad under the verse."
	}

	return &CompletionResponse{
		Content:          content,
		PromptTokens:     len(strings.Fields(req.SystemPrompt + " " + req.Prompt)),
		CompletionTokens: len(strings.Fields(content)),
		Duration:         time.Millisecond,
	}, nil
}

// StreamComplete emits the mock reply word by word
func (m MockChatClient) StreamComplete(ctx context.Context, req CompletionRequest, onToken func(string) error) error {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	for i, w := range strings.Fields(resp.Content) {
		if i > 0 {
			w = " " + w
		}
		if err := onToken(w); err != nil {
			return err
		}
	}
	return nil
}

func (MockChatClient) IsConfigured() bool { return false }
