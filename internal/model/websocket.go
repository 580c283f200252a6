package model

import "time"

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries one ledger snapshot
type WSProgressMessage struct {
	Type      string    `json:"type"`
	ProjectID string    `json:"projectId"`
	JobID     string    `json:"jobId,omitempty"`
	Stage     string    `json:"stage"`
	Component string    `json:"component"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WSCompleteMessage represents run completion
type WSCompleteMessage struct {
	Type      string      `json:"type"`
	ProjectID string      `json:"projectId"`
	JobID     string      `json:"jobId,omitempty"`
	Result    interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type      string  `json:"type"`
	ProjectID string  `json:"projectId"`
	JobID     string  `json:"jobId,omitempty"`
	Error     WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
