package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/makeasinger/musicforge/internal/config"
)

// ChunkStream yields audio chunks until io.EOF. It is consumed once.
type ChunkStream interface {
	Next() (*AudioChunk, error)
	Close() error
}

// WorkerClient talks to the theory/synthesis worker service over HTTP
type WorkerClient struct {
	httpClient *http.Client
	baseURL    string
}

// TheoryRequest represents the request for chord and structure generation
type TheoryRequest struct {
	Genre           string   `json:"genre"`
	Mood            string   `json:"mood"`
	TempoBpm        int      `json:"tempo_bpm"`
	Key             string   `json:"key"`
	Mode            string   `json:"mode"`
	DurationSeconds int      `json:"duration_seconds"`
	StyleTags       []string `json:"style_tags,omitempty"`
}

// SectionData describes one section of the generated structure
type SectionData struct {
	Name         string   `json:"name"`
	StartBar     int      `json:"start_bar"`
	DurationBars int      `json:"duration_bars"`
	EnergyLevel  float64  `json:"energy_level"`
	Elements     []string `json:"elements,omitempty"`
}

// TheoryResult represents the response from theory generation
type TheoryResult struct {
	ChordProgression []string      `json:"chord_progression"`
	Sections         []SectionData `json:"sections"`
	MidiData         []byte        `json:"midi_data,omitempty"`
}

// AudioRequest represents the request for streamed audio synthesis
type AudioRequest struct {
	Prompt            string  `json:"prompt"`
	DurationSeconds   int     `json:"duration_seconds"`
	Genre             string  `json:"genre"`
	EnergyLevel       float64 `json:"energy_level"`
	ConditioningAudio []byte  `json:"conditioning_audio,omitempty"`
	SectionName       string  `json:"section_name"`
}

// VocalRequest represents the request for streamed vocal synthesis
type VocalRequest struct {
	Lyrics           string `json:"lyrics"`
	VoiceType        string `json:"voice_type"`
	Style            string `json:"style"`
	TargetDurationMs int    `json:"target_duration_ms"`
}

// AudioChunk is one streamed piece of synthesized audio
type AudioChunk struct {
	AudioData  []byte  `json:"audio_data"`
	SampleRate int     `json:"sample_rate"`
	IsFinal    bool    `json:"is_final"`
	Progress   float64 `json:"progress"`
}

// HealthStatus represents the worker health report
type HealthStatus struct {
	Status         string   `json:"status"`
	GpuAvailable   bool     `json:"gpu_available"`
	GpuMemoryBytes int64    `json:"gpu_memory_bytes"`
	ModelsLoaded   []string `json:"models_loaded"`
}

// NewWorkerClient creates a new worker client
func NewWorkerClient(cfg *config.WorkerConfig) *WorkerClient {
	return &WorkerClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
	}
}

// GenerateTheory requests a chord progression and section layout
func (c *WorkerClient) GenerateTheory(ctx context.Context, req *TheoryRequest) (*TheoryResult, error) {
	var result TheoryResult
	if err := c.post(ctx, "/theory", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SynthesizeAudio opens a streamed synthesis for one component
func (c *WorkerClient) SynthesizeAudio(ctx context.Context, req *AudioRequest) (ChunkStream, error) {
	return c.stream(ctx, "/synthesize/audio", req)
}

// SynthesizeVocals opens a streamed vocal synthesis
func (c *WorkerClient) SynthesizeVocals(ctx context.Context, req *VocalRequest) (ChunkStream, error) {
	return c.stream(ctx, "/synthesize/vocals", req)
}

// HealthCheck checks if the worker is available
func (c *WorkerClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("worker unhealthy: status %d", resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode health status: %w", err)
	}
	return &status, nil
}

// post sends a POST request with JSON body and parses the response
func (c *WorkerClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	resp, err := c.do(ctx, endpoint, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func (c *WorkerClient) stream(ctx context.Context, endpoint string, body interface{}) (ChunkStream, error) {
	resp, err := c.do(ctx, endpoint, body, "application/x-ndjson")
	if err != nil {
		return nil, err
	}
	return &AudioStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

func (c *WorkerClient) do(ctx context.Context, endpoint string, body interface{}, accept string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("worker error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *WorkerClient) IsConfigured() bool {
	return c.baseURL != ""
}

// AudioStream decodes newline-delimited JSON chunks from a response body
type AudioStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	done bool
}

// Next returns the next chunk, or io.EOF after the final chunk
func (s *AudioStream) Next() (*AudioChunk, error) {
	if s.done {
		return nil, io.EOF
	}

	var chunk AudioChunk
	if err := s.dec.Decode(&chunk); err != nil {
		s.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
	}
	if chunk.IsFinal {
		s.done = true
	}
	return &chunk, nil
}

// Close releases the underlying response body
func (s *AudioStream) Close() error {
	s.done = true
	return s.body.Close()
}
