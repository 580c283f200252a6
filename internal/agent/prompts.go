package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/makeasinger/musicforge/internal/model"
)

const classifySystemPrompt = `You are an expert music producer and composer. Analyze the user's request and create a generation plan.
Return a JSON object with:
- style: detailed style description
- structure: array of section names (intro, verse, chorus, etc)
- instruments: array of instruments to use
- mood_progression: how energy should flow through the track`

const feedbackSystemPrompt = "You are a music producer assistant. Provide concise, actionable feedback analysis."

// plan is the structured reading of a free-text request
type plan struct {
	Style           string   `json:"style"`
	Structure       []string `json:"structure"`
	Instruments     []string `json:"instruments"`
	MoodProgression string   `json:"mood_progression"`
}

func defaultPlan(spec model.SongSpecification) plan {
	return plan{
		Style:           fmt.Sprintf("%s %s", spec.Genre, spec.Mood),
		Structure:       []string{"intro", "verse", "chorus", "outro"},
		Instruments:     []string{"synth", "drums", "bass", "pad"},
		MoodProgression: "building then relaxing",
	}
}

var defaultChords = []string{"C", "G", "Am", "F"}

func classifyPrompt(p *model.Project, request string) string {
	spec := p.Specification
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n", p.Name)
	fmt.Fprintf(&sb, "Genre: %s\n", spec.Genre)
	fmt.Fprintf(&sb, "Mood: %s\n", spec.Mood)
	fmt.Fprintf(&sb, "Key: %s\n", spec.Key)
	fmt.Fprintf(&sb, "Tempo: %d BPM\n", int(spec.Tempo))
	fmt.Fprintf(&sb, "Duration: %d seconds\n", spec.DurationSeconds)
	if len(spec.StyleTags) > 0 {
		fmt.Fprintf(&sb, "Style tags: %s\n", strings.Join(spec.StyleTags, ", "))
	}
	if p.Context != nil {
		fmt.Fprintf(&sb, "\nContext:\n%s\n", p.Context.PromptContext())
	}
	fmt.Fprintf(&sb, "\nUser request: %s\n\n", request)
	sb.WriteString("Create a generation plan as JSON.")
	return sb.String()
}

func chordPrompt(spec model.SongSpecification) string {
	return fmt.Sprintf("Generate a chord progression for %s in %s. Return only the chords separated by dashes.", spec.Genre, spec.Key)
}

func feedbackPrompt(feedback, targetSection string) string {
	if targetSection == "" {
		targetSection = "entire track"
	}
	return fmt.Sprintf("Analyze this music feedback and determine what changes to make:\n\nFeedback: %s\n\nTarget section: %s\n\nRespond with specific musical changes (tempo, energy, instruments, etc).", feedback, targetSection)
}

func componentPrompt(spec model.SongSpecification, component string) string {
	return fmt.Sprintf("%s %s, %s mood", spec.Genre, component, spec.Mood)
}

// parsePlan reads the classification reply. Any error wraps ErrMalformedOutput.
func parsePlan(content string) (plan, error) {
	var p plan
	if err := json.Unmarshal([]byte(extractJSON(content)), &p); err != nil {
		return plan{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if len(p.Structure) == 0 || len(p.Instruments) == 0 {
		return plan{}, fmt.Errorf("%w: plan missing structure or instruments", ErrMalformedOutput)
	}
	return p, nil
}

// parseChords splits a dash separated progression like "C - G - Am - F"
func parseChords(content string) ([]string, error) {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	var chords []string
	for _, c := range strings.Split(line, "-") {
		if c = strings.TrimSpace(c); c != "" {
			chords = append(chords, c)
		}
	}
	if len(chords) == 0 {
		return nil, fmt.Errorf("%w: no chords in %q", ErrMalformedOutput, content)
	}
	return chords, nil
}

// extractJSON attempts to extract JSON from a response that may contain extra text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}
