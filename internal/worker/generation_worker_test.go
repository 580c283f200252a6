package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makeasinger/musicforge/internal/agent"
	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/model"
	"github.com/makeasinger/musicforge/internal/repository"
	"github.com/makeasinger/musicforge/internal/service"
)

type jobRecord struct {
	progress []int
	done     bool
	failed   string
}

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*jobRecord
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*jobRecord)}
}

func (f *fakeJobs) get(id string) *jobRecord {
	if f.jobs[id] == nil {
		f.jobs[id] = &jobRecord{}
	}
	return f.jobs[id]
}

func (f *fakeJobs) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.get(jobID)
	r.progress = append(r.progress, progress)
	return nil
}

func (f *fakeJobs) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(jobID).done = true
	return nil
}

func (f *fakeJobs) FailJob(ctx context.Context, jobID string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get(jobID).failed = errMsg
	return nil
}

type event struct {
	kind      string
	projectID string
	jobID     string
	stage     agent.Stage
	code      string
}

type fakeHub struct {
	mu     sync.Mutex
	events []event
}

func (h *fakeHub) BroadcastProgress(projectID, jobID string, snap agent.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "progress", projectID: projectID, jobID: jobID, stage: snap.Stage})
}

func (h *fakeHub) BroadcastComplete(projectID, jobID string, result interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "complete", projectID: projectID, jobID: jobID})
}

func (h *fakeHub) BroadcastError(projectID, jobID, code, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{kind: "error", projectID: projectID, jobID: jobID, code: code})
}

func newTask(t *testing.T, taskType, jobID string, payload interface{}) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(service.TaskPayload{JobID: jobID, Payload: raw})
	require.NoError(t, err)
	return asynq.NewTask(taskType, data)
}

func setup(t *testing.T) (*GenerationWorker, *fakeJobs, *fakeHub, *model.Project, repository.ProjectRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	p := model.NewProject("Worker Test", model.SongSpecification{
		Genre: model.GenreLofi,
		Mood:  model.MoodChill,
	})
	require.NoError(t, repo.Save(context.Background(), p))

	jobs := newFakeJobs()
	hub := &fakeHub{}
	relay := NewProgressRelay(jobs, hub, nil)
	orch := agent.NewOrchestrator(client.MockChatClient{}, repo, agent.WithObserver(relay.Observe))
	return NewGenerationWorker(orch, jobs, hub, relay, repo, nil), jobs, hub, p, repo
}

func TestProcessGenerate_RelaysProgressAndCompletes(t *testing.T) {
	w, jobs, hub, p, _ := setup(t)

	task := newTask(t, service.TaskTypeGenerate, "job-1", model.GenerateJobPayload{ProjectID: p.ID, Prompt: "rainy day beats"})
	require.NoError(t, w.ProcessGenerate(context.Background(), task))

	rec := jobs.jobs["job-1"]
	require.NotNil(t, rec)
	assert.True(t, rec.done)
	assert.Empty(t, rec.failed)
	assert.Equal(t, []int{0, 10, 20, 40, 40, 50, 60, 70, 90}, rec.progress)

	require.NotEmpty(t, hub.events)
	last := hub.events[len(hub.events)-1]
	assert.Equal(t, "complete", last.kind)
	assert.Equal(t, p.ID, last.projectID)
	assert.Equal(t, "job-1", last.jobID)

	var stages []agent.Stage
	for _, e := range hub.events {
		if e.kind == "progress" {
			assert.Equal(t, "job-1", e.jobID)
			stages = append(stages, e.stage)
		}
	}
	assert.Equal(t, []agent.Stage{
		agent.StageIdle, agent.StageUnderstanding, agent.StageComposing,
		agent.StageSynthesizingAudio, agent.StageSynthesizingAudio, agent.StageSynthesizingAudio,
		agent.StageSynthesizingAudio, agent.StageSynthesizingAudio, agent.StageMastering,
		agent.StageComplete,
	}, stages)
}

func TestProcessGenerate_UnknownProjectFailsJob(t *testing.T) {
	w, jobs, hub, _, _ := setup(t)

	task := newTask(t, service.TaskTypeGenerate, "job-2", model.GenerateJobPayload{ProjectID: "missing"})
	err := w.ProcessGenerate(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	assert.Equal(t, "Project missing not found.", jobs.jobs["job-2"].failed)
	require.Len(t, hub.events, 1)
	assert.Equal(t, "error", hub.events[0].kind)
	assert.Equal(t, codeGenerationFailed, hub.events[0].code)
}

func TestProcessGenerate_BadEnvelope(t *testing.T) {
	w, _, _, _, _ := setup(t)

	err := w.ProcessGenerate(context.Background(), asynq.NewTask(service.TaskTypeGenerate, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type failingRunner struct{}

func (failingRunner) Generate(ctx context.Context, projectID, prompt string) *agent.GenerationResult {
	return &agent.GenerationResult{Success: true}
}

func (failingRunner) Iterate(ctx context.Context, projectID, feedback, targetSection string) (*agent.GenerationResult, error) {
	return nil, &agent.ProviderError{Op: "feedback analysis", Err: errors.New("timeout")}
}

func TestProcessIterate_FeedbackErrorMarksProjectFailed(t *testing.T) {
	_, jobs, hub, p, repo := setup(t)
	w := NewGenerationWorker(failingRunner{}, jobs, hub, nil, repo, nil)

	task := newTask(t, service.TaskTypeIterate, "job-3", model.IterateJobPayload{ProjectID: p.ID, Feedback: "darker"})
	err := w.ProcessIterate(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrProviderFailure)

	stored, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProjectStatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "feedback analysis failed: timeout")
	assert.Contains(t, jobs.jobs["job-3"].failed, "Feedback analysis failed")
	require.Len(t, hub.events, 1)
	assert.Equal(t, codeIterationFailed, hub.events[0].code)
}

func TestProcessIterate_RunsPipeline(t *testing.T) {
	w, jobs, _, p, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, w.ProcessGenerate(ctx, newTask(t, service.TaskTypeGenerate, "job-4", model.GenerateJobPayload{ProjectID: p.ID})))
	require.NoError(t, w.ProcessIterate(ctx, newTask(t, service.TaskTypeIterate, "job-5", model.IterateJobPayload{ProjectID: p.ID, Feedback: "more swing"})))

	assert.True(t, jobs.jobs["job-5"].done)
}
