package model

import "time"

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Name            string   `json:"name" validate:"required,min=1,max=120"`
	Description     string   `json:"description" validate:"required,min=1,max=2000"`
	Genre           Genre    `json:"genre" validate:"required,oneof=electronic hiphop pop rock jazz classical ambient cinematic lofi"`
	Mood            Mood     `json:"mood" validate:"required,oneof=energetic melancholic uplifting dark peaceful aggressive romantic chill"`
	Tempo           int      `json:"tempo" validate:"omitempty,min=40,max=240"`
	Key             string   `json:"key" validate:"omitempty,max=16"`
	DurationSeconds int      `json:"durationSeconds" validate:"omitempty,min=10,max=600"`
	HasVocals       bool     `json:"hasVocals"`
	Lyrics          string   `json:"lyrics" validate:"omitempty,max=5000"`
	StyleTags       []string `json:"styleTags" validate:"omitempty,max=10,dive,min=1,max=40"`
}

// GenerateRequest starts a generation run for a project
type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"omitempty,max=2000"`
}

// IterateRequest re-enters the pipeline with feedback
type IterateRequest struct {
	Feedback      string `json:"feedback" validate:"required,min=1,max=2000"`
	TargetSection string `json:"targetSection" validate:"omitempty,max=40"`
}

// JobAcceptedResponse is returned when a run is queued
type JobAcceptedResponse struct {
	JobID     string    `json:"jobId"`
	ProjectID string    `json:"projectId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse represents the status of a queued run
type JobStatusResponse struct {
	JobID       string      `json:"jobId"`
	Type        string      `json:"type"`
	ProjectID   string      `json:"projectId"`
	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	Error       *string     `json:"error,omitempty"`
	Result      interface{} `json:"result,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// ProjectSummary is the list view of a project
type ProjectSummary struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Genre     Genre         `json:"genre"`
	Mood      Mood          `json:"mood"`
	Status    ProjectStatus `json:"status"`
	StemCount int           `json:"stemCount"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// ProjectListResponse wraps a list of project summaries
type ProjectListResponse struct {
	Projects []ProjectSummary `json:"projects"`
	Total    int              `json:"total"`
}

// ProgressResponse is the latest ledger snapshot for a project
type ProgressResponse struct {
	ProjectID string    `json:"projectId"`
	Active    bool      `json:"active"`
	Stage     string    `json:"stage"`
	Component string    `json:"component,omitempty"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// StageEntry is one entry of a run's stage history
type StageEntry struct {
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}

// StageHistoryResponse lists the stage history of the project's run
type StageHistoryResponse struct {
	ProjectID string       `json:"projectId"`
	Current   string       `json:"current"`
	History   []StageEntry `json:"history"`
}

// Summary builds the list view of p
func (p *Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:        p.ID,
		Name:      p.Name,
		Genre:     p.Specification.Genre,
		Mood:      p.Specification.Mood,
		Status:    p.Status,
		StemCount: len(p.Stems),
		UpdatedAt: p.UpdatedAt,
	}
}
