package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/model"
	"github.com/makeasinger/musicforge/internal/repository"
)

const (
	TaskTypeGenerate = "project:generate"
	TaskTypeIterate  = "project:iterate"

	QueueGeneration = "generation"

	jobTTL = 24 * time.Hour
)

var (
	ErrJobNotFound          = errors.New("job not found")
	ErrInvalidSpecification = errors.New("invalid song specification")
)

// Enqueuer queues background tasks. *asynq.Client implements it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProjectService handles project records and the jobs that run them
type ProjectService struct {
	repo       repository.ProjectRepository
	redis      *redis.Client
	queue      Enqueuer
	storage    client.StorageClient
	runTimeout time.Duration
	logger     *zap.Logger
}

func NewProjectService(repo repository.ProjectRepository, redisClient *redis.Client, queue Enqueuer, storage client.StorageClient, runTimeout time.Duration, logger *zap.Logger) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectService{
		repo:       repo,
		redis:      redisClient,
		queue:      queue,
		storage:    storage,
		runTimeout: runTimeout,
		logger:     logger.Named("project_service"),
	}
}

// CreateProject validates the request and stores a draft project
func (s *ProjectService) CreateProject(ctx context.Context, req *model.CreateProjectRequest) (*model.Project, error) {
	spec := model.SongSpecification{
		Description:     req.Description,
		Genre:           req.Genre,
		Mood:            req.Mood,
		DurationSeconds: req.DurationSeconds,
		HasVocals:       req.HasVocals,
		Lyrics:          req.Lyrics,
		StyleTags:       req.StyleTags,
	}

	if req.Tempo != 0 {
		tempo, err := model.NewBpmTempo(req.Tempo)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpecification, err)
		}
		spec.Tempo = tempo
	}
	if strings.TrimSpace(req.Key) != "" {
		key, err := model.ParseKey(req.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpecification, err)
		}
		spec.Key = key
	}

	project := model.NewProject(req.Name, spec)
	if err := s.repo.Save(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	s.logger.Info("project created", zap.String("project_id", project.ID), zap.String("genre", string(spec.Genre)))
	return project, nil
}

// GetProject loads a project and signs its stem URLs when storage is configured
func (s *ProjectService) GetProject(ctx context.Context, id string) (*model.Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.storage != nil && s.storage.IsConfigured() {
		for i := range project.Stems {
			url, err := s.storage.SignedURL(ctx, client.ArtifactKey(project.Stems[i].Path), time.Hour)
			if err != nil {
				s.logger.Warn("failed to sign stem url", zap.String("stem_id", project.Stems[i].ID), zap.Error(err))
				continue
			}
			project.Stems[i].URL = url
		}
	}
	return project, nil
}

// ListProjects returns summaries of every stored project, newest first
func (s *ProjectService) ListProjects(ctx context.Context) (*model.ProjectListResponse, error) {
	projects, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, p.Summary())
	}
	return &model.ProjectListResponse{Projects: summaries, Total: len(summaries)}, nil
}

// DeleteProject removes the project and its uploaded artifacts
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if s.storage != nil && s.storage.IsConfigured() && len(project.Stems) > 0 {
		keys := make([]string, 0, len(project.Stems))
		for _, stem := range project.Stems {
			keys = append(keys, client.ArtifactKey(stem.Path))
		}
		if err := s.storage.DeleteArtifacts(ctx, keys); err != nil {
			s.logger.Warn("failed to delete artifacts", zap.String("project_id", id), zap.Error(err))
		}
	}

	return s.repo.Delete(ctx, id)
}

// StartGenerate queues a generation run. An empty prompt uses the project description.
func (s *ProjectService) StartGenerate(ctx context.Context, projectID, prompt string) (*model.JobAcceptedResponse, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = project.Specification.Description
	}

	return s.enqueue(ctx, model.JobTypeGenerate, TaskTypeGenerate, projectID, &model.GenerateJobPayload{
		ProjectID: projectID,
		Prompt:    prompt,
	})
}

// StartIterate queues an iteration run with user feedback
func (s *ProjectService) StartIterate(ctx context.Context, projectID string, req *model.IterateRequest) (*model.JobAcceptedResponse, error) {
	if _, err := s.repo.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	return s.enqueue(ctx, model.JobTypeIterate, TaskTypeIterate, projectID, &model.IterateJobPayload{
		ProjectID:     projectID,
		Feedback:      req.Feedback,
		TargetSection: req.TargetSection,
	})
}

func (s *ProjectService) enqueue(ctx context.Context, jobType, taskType, projectID string, payload interface{}) (*model.JobAcceptedResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &model.Job{
		ID:        jobID,
		Type:      jobType,
		ProjectID: projectID,
		Status:    model.JobStatusQueued,
		Payload:   payloadBytes,
		CreatedAt: now,
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newProjectTask(taskType, jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueGeneration),
		asynq.MaxRetry(0),
		asynq.Retention(jobTTL),
	}
	if s.runTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.runTimeout))
	}
	if _, err := s.queue.Enqueue(task, opts...); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("job queued",
		zap.String("job_id", jobID),
		zap.String("project_id", projectID),
		zap.String("type", jobType),
	)

	return &model.JobAcceptedResponse{
		JobID:     jobID,
		ProjectID: projectID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetJob returns the status of a queued run
func (s *ProjectService) GetJob(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:       job.ID,
		Type:        job.Type,
		ProjectID:   job.ProjectID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if len(job.Result) > 0 {
		resp.Result = json.RawMessage(job.Result)
	}
	return resp, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *ProjectService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as succeeded (called by worker)
func (s *ProjectService) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *ProjectService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *ProjectService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, jobTTL).Err()
}

func (s *ProjectService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// TaskPayload is the envelope carried by generation tasks
type TaskPayload struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

func newProjectTask(taskType, jobID string, payload []byte) (*asynq.Task, error) {
	data, err := json.Marshal(TaskPayload{JobID: jobID, Payload: payload})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}
