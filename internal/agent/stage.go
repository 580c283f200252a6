package agent

// Stage is one step of the generation pipeline
type Stage string

const (
	StageIdle               Stage = "idle"
	StageUnderstanding      Stage = "understanding"
	StagePlanning           Stage = "planning"
	StageComposing          Stage = "composing"
	StageGeneratingMidi     Stage = "generating_midi"
	StageSynthesizingAudio  Stage = "synthesizing_audio"
	StageSynthesizingVocals Stage = "synthesizing_vocals"
	StageMixing             Stage = "mixing"
	StageMastering          Stage = "mastering"
	StageExporting          Stage = "exporting"
	StageAwaitingFeedback   Stage = "awaiting_feedback"
	StageIterating          Stage = "iterating"
	StageError              Stage = "error"
	StageComplete           Stage = "complete"
)

// AllStages lists every stage in pipeline order
func AllStages() []Stage {
	return []Stage{
		StageIdle, StageUnderstanding, StagePlanning, StageComposing,
		StageGeneratingMidi, StageSynthesizingAudio, StageSynthesizingVocals,
		StageMixing, StageMastering, StageExporting, StageAwaitingFeedback,
		StageIterating, StageError, StageComplete,
	}
}

var stageLabels = map[Stage]string{
	StageIdle:               "Idle",
	StageUnderstanding:      "Understanding",
	StagePlanning:           "Planning",
	StageComposing:          "Composing",
	StageGeneratingMidi:     "GeneratingMidi",
	StageSynthesizingAudio:  "SynthesizingAudio",
	StageSynthesizingVocals: "SynthesizingVocals",
	StageMixing:             "Mixing",
	StageMastering:          "Mastering",
	StageExporting:          "Exporting",
	StageAwaitingFeedback:   "AwaitingFeedback",
	StageIterating:          "Iterating",
	StageError:              "Error",
	StageComplete:           "Complete",
}

// Label is the display name used as the ledger component
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// Terminal is true for the stages that end a run's progress stream
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}
