package model

import "time"

// Job represents a background job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // "generate" or "iterate"
	ProjectID   string     `json:"projectId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"payload,omitempty"`
	Result      []byte     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeGenerate = "generate"
	JobTypeIterate  = "iterate"
)

// GenerateJobPayload contains the data for a generate job
type GenerateJobPayload struct {
	ProjectID string `json:"projectId"`
	Prompt    string `json:"prompt"`
}

// IterateJobPayload contains the data for an iterate job
type IterateJobPayload struct {
	ProjectID     string `json:"projectId"`
	Feedback      string `json:"feedback"`
	TargetSection string `json:"targetSection,omitempty"`
}
