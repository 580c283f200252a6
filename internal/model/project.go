package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
)

var ErrNoMasterFile = errors.New("cannot complete project without a master file")

// Stem is one synthesized component attached to a project
type Stem struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          ComponentType `json:"type"`
	Path          string        `json:"path"`
	URL           string        `json:"url,omitempty"`
	Duration      float64       `json:"duration"`
	SampleRate    int           `json:"sampleRate"`
	Channels      int           `json:"channels"`
	FileSizeBytes int64         `json:"fileSizeBytes"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NewStem creates a stem with the default audio format
func NewStem(name string, componentType ComponentType, path string) Stem {
	return Stem{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       componentType,
		Path:       path,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		CreatedAt:  time.Now().UTC(),
	}
}

// Arrangement holds the theory output for a project
type Arrangement struct {
	Style            string   `json:"style,omitempty"`
	ChordProgression []string `json:"chordProgression"`
	Sections         []string `json:"sections"`
	Instruments      []string `json:"instruments,omitempty"`
	EnergyNarrative  string   `json:"energyNarrative,omitempty"`
	ScoreData        []byte   `json:"scoreData,omitempty"`
}

// Project is the aggregate a generation run operates on
type Project struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Specification  SongSpecification `json:"specification"`
	Arrangement    *Arrangement      `json:"arrangement,omitempty"`
	Stems          []Stem            `json:"stems"`
	MasterFilePath string            `json:"masterFilePath,omitempty"`
	Status         ProjectStatus     `json:"status"`
	FailureReason  string            `json:"failureReason,omitempty"`
	Context        *AgentContext     `json:"context"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// NewProject creates a draft project
func NewProject(name string, spec SongSpecification) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:            uuid.New().String(),
		Name:          name,
		Specification: spec.WithDefaults(),
		Stems:         []Stem{},
		Status:        ProjectStatusDraft,
		Context:       NewAgentContext(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// BeginGeneration moves the project into composing and pins the musical context
func (p *Project) BeginGeneration(description string) {
	if p.Context == nil {
		p.Context = NewAgentContext()
	}
	p.Status = ProjectStatusComposing
	p.FailureReason = ""
	p.Context.AddCheckpoint("Generation started: " + description)
	p.Context.EstablishMusicalContext(p.Specification.Key, p.Specification.Tempo, p.Specification.Genre)
	p.touch()
}

// SetStatus records an intermediate pipeline status
func (p *Project) SetStatus(status ProjectStatus) {
	p.Status = status
	p.touch()
}

// AddStem attaches a synthesized artifact
func (p *Project) AddStem(stem Stem) {
	p.Stems = append(p.Stems, stem)
	p.touch()
}

// Complete marks the project finished
func (p *Project) Complete() error {
	if p.MasterFilePath == "" {
		return ErrNoMasterFile
	}
	p.Status = ProjectStatusComplete
	if p.Context != nil {
		p.Context.UpdateProgress(1)
	}
	p.touch()
	return nil
}

// Fail marks the project failed with reason
func (p *Project) Fail(reason string) {
	p.Status = ProjectStatusFailed
	p.FailureReason = reason
	p.touch()
}

// StemPaths lists the paths of every attached stem in order
func (p *Project) StemPaths() []string {
	paths := make([]string, 0, len(p.Stems))
	for _, s := range p.Stems {
		paths = append(paths, s.Path)
	}
	return paths
}

func (p *Project) touch() {
	p.UpdatedAt = time.Now().UTC()
}
