package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/model"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
)

const (
	codeGenerationFailed = "GENERATION_FAILED"
	codeIterationFailed  = "ITERATION_FAILED"
)

// Runner executes generation runs
type Runner interface {
	Generate(ctx context.Context, projectID, prompt string) *agent.GenerationResult
	Iterate(ctx context.Context, projectID, feedback, targetSection string) (*agent.GenerationResult, error)
}

// JobTracker records job state
type JobTracker interface {
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result interface{}) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// Broadcaster pushes run events to websocket subscribers
type Broadcaster interface {
	BroadcastProgress(projectID, jobID string, snap agent.Snapshot)
	BroadcastComplete(projectID, jobID string, result interface{})
	BroadcastError(projectID, jobID, code, message string)
}

// ProgressRelay forwards ledger snapshots to the job record and the hub.
// Its Observe method is installed on the orchestrator.
type ProgressRelay struct {
	jobs   JobTracker
	hub    Broadcaster
	logger *zap.Logger

	mu     sync.Mutex
	jobIDs map[string]string
}

func NewProgressRelay(jobs JobTracker, hub Broadcaster, logger *zap.Logger) *ProgressRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressRelay{
		jobs:   jobs,
		hub:    hub,
		logger: logger.Named("relay"),
		jobIDs: make(map[string]string),
	}
}

// Track associates the next run of projectID with jobID
func (r *ProgressRelay) Track(projectID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobIDs[projectID] = jobID
}

func (r *ProgressRelay) Untrack(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobIDs, projectID)
}

func (r *ProgressRelay) jobID(projectID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobIDs[projectID]
}

// Observe drains updates for one run
func (r *ProgressRelay) Observe(ctx context.Context, runID string, updates <-chan agent.Snapshot) {
	jobID := r.jobID(runID)
	for snap := range updates {
		if jobID != "" && !snap.Stage.Terminal() {
			progress := int(math.Round(snap.Progress * 100))
			if err := r.jobs.UpdateJobProgress(context.WithoutCancel(ctx), jobID, progress, snap.Message); err != nil {
				r.logger.Warn("failed to update progress", zap.String("job_id", jobID), zap.Error(err))
			}
		}
		r.hub.BroadcastProgress(runID, jobID, snap)
	}
}

// GenerationWorker processes generate and iterate tasks
type GenerationWorker struct {
	runner Runner
	jobs   JobTracker
	hub    Broadcaster
	relay  *ProgressRelay
	repo   repository.ProjectRepository
	logger *zap.Logger
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(runner Runner, jobs JobTracker, hub Broadcaster, relay *ProgressRelay, repo repository.ProjectRepository, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationWorker{
		runner: runner,
		jobs:   jobs,
		hub:    hub,
		relay:  relay,
		repo:   repo,
		logger: logger.Named("generation_worker"),
	}
}

// ProcessGenerate handles project:generate tasks
func (w *GenerationWorker) ProcessGenerate(ctx context.Context, t *asynq.Task) error {
	jobID, raw, err := decodeTask(t)
	if err != nil {
		return err
	}

	var payload model.GenerateJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.failJob(ctx, "", jobID, codeGenerationFailed, "Invalid payload")
		return fmt.Errorf("failed to unmarshal generate payload: %v: %w", err, asynq.SkipRetry)
	}

	logger := w.logger.With(zap.String("job_id", jobID), zap.String("project_id", payload.ProjectID))
	logger.Info("starting generate job")

	w.track(payload.ProjectID, jobID)
	defer w.untrack(payload.ProjectID)

	result := w.runner.Generate(ctx, payload.ProjectID, payload.Prompt)
	return w.finish(ctx, logger, payload.ProjectID, jobID, codeGenerationFailed, result)
}

// ProcessIterate handles project:iterate tasks
func (w *GenerationWorker) ProcessIterate(ctx context.Context, t *asynq.Task) error {
	jobID, raw, err := decodeTask(t)
	if err != nil {
		return err
	}

	var payload model.IterateJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		w.failJob(ctx, "", jobID, codeIterationFailed, "Invalid payload")
		return fmt.Errorf("failed to unmarshal iterate payload: %v: %w", err, asynq.SkipRetry)
	}

	logger := w.logger.With(zap.String("job_id", jobID), zap.String("project_id", payload.ProjectID))
	logger.Info("starting iterate job", zap.String("target_section", payload.TargetSection))

	w.track(payload.ProjectID, jobID)
	defer w.untrack(payload.ProjectID)

	result, err := w.runner.Iterate(ctx, payload.ProjectID, payload.Feedback, payload.TargetSection)
	if err != nil {
		msg := fmt.Sprintf("Feedback analysis failed: %v", err)
		w.markProjectFailed(ctx, logger, payload.ProjectID, msg)
		w.failJob(ctx, payload.ProjectID, jobID, codeIterationFailed, msg)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return w.finish(ctx, logger, payload.ProjectID, jobID, codeIterationFailed, result)
}

func (w *GenerationWorker) finish(ctx context.Context, logger *zap.Logger, projectID, jobID, code string, result *agent.GenerationResult) error {
	if !result.Success {
		w.failJob(ctx, projectID, jobID, code, result.ErrorMessage)
		logger.Warn("job failed",
			zap.String("error", result.ErrorMessage),
			zap.Bool("provider_failure", errors.Is(result.Err, agent.ErrProviderFailure)),
		)
		return fmt.Errorf("%s: %w", result.ErrorMessage, asynq.SkipRetry)
	}

	if err := w.jobs.CompleteJob(context.WithoutCancel(ctx), jobID, result); err != nil {
		w.failJob(ctx, projectID, jobID, code, "Failed to save result")
		return err
	}

	w.hub.BroadcastComplete(projectID, jobID, result)
	logger.Info("job completed", zap.Int("stems", len(result.StemPaths)))
	return nil
}

func (w *GenerationWorker) markProjectFailed(ctx context.Context, logger *zap.Logger, projectID, msg string) {
	saveCtx := context.WithoutCancel(ctx)
	project, err := w.repo.GetByID(saveCtx, projectID)
	if err != nil {
		logger.Warn("failed to load project", zap.Error(err))
		return
	}
	project.Fail(msg)
	if err := w.repo.Save(saveCtx, project); err != nil {
		logger.Warn("failed to save project", zap.Error(err))
	}
}

func (w *GenerationWorker) failJob(ctx context.Context, projectID, jobID, code, errMsg string) {
	if err := w.jobs.FailJob(context.WithoutCancel(ctx), jobID, errMsg); err != nil {
		w.logger.Error("failed to mark job as failed", zap.String("job_id", jobID), zap.Error(err))
	}
	w.hub.BroadcastError(projectID, jobID, code, errMsg)
}

func (w *GenerationWorker) track(projectID, jobID string) {
	if w.relay != nil {
		w.relay.Track(projectID, jobID)
	}
}

func (w *GenerationWorker) untrack(projectID string) {
	if w.relay != nil {
		w.relay.Untrack(projectID)
	}
}

func decodeTask(t *asynq.Task) (string, json.RawMessage, error) {
	var envelope service.TaskPayload
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	return envelope.JobID, envelope.Payload, nil
}
