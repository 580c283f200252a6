// Package agent drives a project through the generation pipeline: the stage
// state machine, the per-run progress ledger, and the orchestrator that calls
// the text and worker providers in order.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/musicforge/internal/client"
	"github.com/makeasinger/musicforge/internal/metrics"
	"github.com/makeasinger/musicforge/internal/model"
	"github.com/makeasinger/musicforge/internal/repository"
)

// Components synthesized for every run, in order
var Components = []string{"drums", "bass", "lead", "pad"}

const (
	runKindGenerate = "generate"
	runKindIterate  = "iterate"

	defaultPersistTimeout = 10 * time.Second
)

// TextProvider completes prompts
type TextProvider interface {
	Complete(ctx context.Context, req client.CompletionRequest) (*client.CompletionResponse, error)
}

// WorkerProvider generates theory and streams synthesized audio
type WorkerProvider interface {
	GenerateTheory(ctx context.Context, req *client.TheoryRequest) (*client.TheoryResult, error)
	SynthesizeAudio(ctx context.Context, req *client.AudioRequest) (client.ChunkStream, error)
	SynthesizeVocals(ctx context.Context, req *client.VocalRequest) (client.ChunkStream, error)
}

// ArtifactStore receives synthesized payloads
type ArtifactStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// GenerationResult is the outcome of a Generate or Iterate call
type GenerationResult struct {
	Success        bool     `json:"success"`
	ErrorMessage   string   `json:"errorMessage,omitempty"`
	MasterFilePath string   `json:"masterFilePath,omitempty"`
	StemPaths      []string `json:"stemPaths"`

	// Err is the typed failure behind ErrorMessage
	Err error `json:"-"`
}

func failureResult(err error) *GenerationResult {
	return &GenerationResult{
		ErrorMessage: err.Error(),
		StemPaths:    []string{},
		Err:          err,
	}
}

// Observer consumes the progress stream of one run. It is started right
// after the run begins and the run does not return until it does.
type Observer func(ctx context.Context, runID string, updates <-chan Snapshot)

type Option func(*Orchestrator)

// WithWorker enables the theory/synthesis worker. Without it the pipeline
// derives chords from the text provider and registers empty stems.
func WithWorker(w WorkerProvider) Option {
	return func(o *Orchestrator) { o.worker = w }
}

// WithStorage uploads non-empty payloads to an artifact store
func WithStorage(s ArtifactStore) Option {
	return func(o *Orchestrator) { o.storage = s }
}

func WithRegistry(r *Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithObserver attaches fn to every run
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithPersistTimeout bounds the save of a failed run after cancellation
func WithPersistTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.persistTimeout = d }
}

// Orchestrator runs the generation pipeline for projects
type Orchestrator struct {
	text           TextProvider
	worker         WorkerProvider
	storage        ArtifactStore
	repo           repository.ProjectRepository
	registry       *Registry
	observer       Observer
	logger         *zap.Logger
	persistTimeout time.Duration
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(text TextProvider, repo repository.ProjectRepository, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		text:           text,
		repo:           repo,
		persistTimeout: defaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.logger = o.logger.Named("orchestrator")
	if o.registry == nil {
		o.registry = NewRegistry(DefaultLedgerTTL, o.logger)
	}
	return o
}

// requireWorker returns the worker, or ErrProviderUnavailable when the
// orchestrator runs without one.
func (o *Orchestrator) requireWorker() (WorkerProvider, error) {
	if o.worker == nil {
		return nil, ErrProviderUnavailable
	}
	return o.worker, nil
}

// Generate runs the full pipeline for a project. It never returns a nil
// result; failures are reported through Success, ErrorMessage and Err.
func (o *Orchestrator) Generate(ctx context.Context, projectID, prompt string) *GenerationResult {
	project, res := o.load(ctx, projectID)
	if res != nil {
		return res
	}
	return o.run(ctx, project, prompt, runKindGenerate)
}

// Iterate feeds user feedback back into the pipeline. A failure translating
// the feedback is returned as an error, not as a failed result.
func (o *Orchestrator) Iterate(ctx context.Context, projectID, feedback, targetSection string) (*GenerationResult, error) {
	project, res := o.load(ctx, projectID)
	if res != nil {
		return res, nil
	}
	if l, ok := o.registry.Ledger(projectID); ok && !l.Snapshot().Stage.Terminal() {
		return failureResult(ErrRunInProgress), nil
	}

	logger := o.logger.With(zap.String("project_id", projectID))
	logger.Info("iterating on feedback", zap.String("target_section", targetSection))

	project.Context.AddTurn(model.RoleUser, feedback)
	analysis, err := o.text.Complete(ctx, client.CompletionRequest{
		Prompt:       feedbackPrompt(feedback, targetSection),
		SystemPrompt: feedbackSystemPrompt,
		MaxTokens:    500,
	})
	metrics.ProviderCalls.WithLabelValues("text", "feedback", metrics.Result(err)).Inc()
	if err != nil {
		return nil, providerError("feedback analysis", err)
	}
	project.Context.AddTurn(model.RoleAssistant, analysis.Content)

	return o.run(ctx, project, "Apply changes: "+analysis.Content, runKindIterate), nil
}

// StreamProgress delivers the run's snapshots in version order. The channel
// closes after a terminal snapshot, on cancellation, or at once for an
// unknown run.
func (o *Orchestrator) StreamProgress(ctx context.Context, runID string) <-chan Snapshot {
	out := make(chan Snapshot)
	ledger, ok := o.registry.Ledger(runID)
	if !ok {
		close(out)
		return out
	}

	// The first delivery is the snapshot current at subscription, so an
	// observer started right after Begin sees every version of the run.
	pending := []Snapshot{ledger.Snapshot()}

	go func() {
		defer close(out)

		var last uint64
		for {
			for _, snap := range pending {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
				last = snap.Version
				if snap.Stage.Terminal() {
					o.registry.Release(runID, ledger)
					return
				}
			}

			var changed <-chan struct{}
			pending, changed = ledger.since(last)
			if len(pending) > 0 {
				continue
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Snapshot returns the latest snapshot for a run
func (o *Orchestrator) Snapshot(runID string) (Snapshot, bool) {
	l, ok := o.registry.Ledger(runID)
	if !ok {
		return Snapshot{}, false
	}
	return l.Snapshot(), true
}

// Stages returns the current stage and history of a run's machine
func (o *Orchestrator) Stages(runID string) (Stage, []StageRecord, bool) {
	m, ok := o.registry.Machine(runID)
	if !ok {
		return "", nil, false
	}
	return m.Current(), m.History(), true
}

func (o *Orchestrator) load(ctx context.Context, projectID string) (*model.Project, *GenerationResult) {
	project, err := o.repo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &GenerationResult{
				ErrorMessage: fmt.Sprintf("Project %s not found.", projectID),
				StemPaths:    []string{},
				Err:          ErrProjectNotFound,
			}
		}
		return nil, failureResult(fmt.Errorf("failed to load project: %w", err))
	}
	if project.Context == nil {
		project.Context = model.NewAgentContext()
	}
	return project, nil
}

func (o *Orchestrator) run(ctx context.Context, project *model.Project, prompt, kind string) *GenerationResult {
	ledger, machine, err := o.registry.Begin(project.ID)
	if err != nil {
		return failureResult(err)
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()
	start := time.Now()

	if o.observer != nil {
		var wg sync.WaitGroup
		updates := o.StreamProgress(ctx, project.ID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.observer(ctx, project.ID, updates)
		}()
		defer wg.Wait()
	}

	r := &pipelineRun{
		o:       o,
		project: project,
		ledger:  ledger,
		machine: machine,
		logger:  o.logger.With(zap.String("project_id", project.ID), zap.String("kind", kind)),
	}
	r.logger.Info("starting generation")

	result := r.execute(ctx, prompt, kind)

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.RunsTotal.WithLabelValues(kind, outcome).Inc()
	metrics.RunDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return result
}

// pipelineRun is the state of one Generate invocation
type pipelineRun struct {
	o       *Orchestrator
	project *model.Project
	ledger  *Ledger
	machine *StateMachine
	logger  *zap.Logger
}

func (r *pipelineRun) execute(ctx context.Context, prompt, kind string) *GenerationResult {
	stemPaths, masterPath, err := r.pipeline(ctx, prompt, kind)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return r.fail(ctx, err)
	}

	r.project.MasterFilePath = masterPath
	if err := r.project.Complete(); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.o.repo.Save(ctx, r.project); err != nil {
		return r.fail(ctx, fmt.Errorf("failed to save project: %w", err))
	}

	if err := r.advance(StageComplete); err != nil {
		return r.fail(ctx, err)
	}
	if err := r.advance(StageAwaitingFeedback); err != nil {
		return r.fail(ctx, err)
	}
	r.ledger.Update(StageComplete, "Generation finished", 1.0)
	r.logger.Info("generation finished", zap.Int("stems", len(stemPaths)))

	return &GenerationResult{
		Success:        true,
		MasterFilePath: masterPath,
		StemPaths:      stemPaths,
	}
}

func (r *pipelineRun) pipeline(ctx context.Context, prompt, kind string) ([]string, string, error) {
	p := r.project
	rc := p.Context

	p.BeginGeneration(prompt)
	rc.SetIntent(kind)
	if err := r.enter(kind); err != nil {
		return nil, "", err
	}

	// Understanding
	r.report(StageUnderstanding, "Understanding request", 0.1)
	plan, err := r.classify(ctx, prompt)
	if err != nil {
		return nil, "", err
	}

	// Planning, Composing
	if err := r.advance(StagePlanning); err != nil {
		return nil, "", err
	}
	if err := r.advance(StageComposing); err != nil {
		return nil, "", err
	}
	r.report(StageComposing, "Creating chord progression", 0.2)
	arrangement, err := r.theory(ctx, plan)
	if err != nil {
		return nil, "", err
	}
	p.Arrangement = arrangement
	rc.AddCheckpoint("Theory: " + strings.Join(arrangement.ChordProgression, "-"))

	// GeneratingMidi
	if err := r.autoAdvance(StageGeneratingMidi); err != nil {
		return nil, "", err
	}
	p.SetStatus(model.ProjectStatusGeneratingMidi)

	// SynthesizingAudio
	if err := r.autoAdvance(StageSynthesizingAudio); err != nil {
		return nil, "", err
	}
	p.SetStatus(model.ProjectStatusSynthesizingAudio)
	r.report(StageSynthesizingAudio, "Generating audio", 0.4)
	stemPaths, err := r.synthesizeComponents(ctx)
	if err != nil {
		return nil, "", err
	}

	// SynthesizingVocals always follows audio. Vocals are only produced
	// when the song asks for them and a worker is present.
	if err := r.autoAdvance(StageSynthesizingVocals); err != nil {
		return nil, "", err
	}
	p.SetStatus(model.ProjectStatusSynthesizingVocals)
	if p.Specification.WantsVocals() {
		path, err := r.synthesizeVocals(ctx)
		switch {
		case errors.Is(err, ErrProviderUnavailable):
			r.logger.Debug("no worker, skipping vocals")
		case err != nil:
			return nil, "", err
		default:
			stemPaths = append(stemPaths, path)
		}
	}

	// Mixing, Mastering
	if err := r.autoAdvance(StageMixing); err != nil {
		return nil, "", err
	}
	p.SetStatus(model.ProjectStatusMixing)
	if err := r.autoAdvance(StageMastering); err != nil {
		return nil, "", err
	}
	p.SetStatus(model.ProjectStatusMastering)
	r.report(StageMastering, "Mixing final track", 0.9)

	return stemPaths, fmt.Sprintf("output/%s/master.wav", p.ID), nil
}

// enter brings the machine to understanding, or to planning when
// re-entering from iterating.
// enter moves the machine onto the first pipeline stage. It runs after
// Begin, so an iterate hand-off only touches a machine this run owns.
func (r *pipelineRun) enter(kind string) error {
	rc := r.project.Context
	if kind == runKindIterate && r.machine.Current() == StageAwaitingFeedback {
		if err := r.advance(StageIterating); err != nil {
			return err
		}
	}
	switch r.machine.Current() {
	case StageIterating:
		return r.advance(StagePlanning)
	case StageIdle:
	default:
		if _, err := r.machine.TransitionTo(StageIdle, rc); err != nil {
			return err
		}
	}
	return r.autoAdvance(StageUnderstanding)
}

func (r *pipelineRun) advance(target Stage) error {
	_, err := r.machine.TransitionTo(target, r.project.Context)
	return err
}

// autoAdvance steps the machine and checks it landed on want
func (r *pipelineRun) autoAdvance(want Stage) error {
	got, err := r.machine.AutoAdvance(r.project.Context)
	if err != nil {
		return err
	}
	if got != want {
		return &IllegalTransitionError{From: got, To: want}
	}
	return nil
}

func (r *pipelineRun) report(stage Stage, message string, progress float64) {
	r.project.Context.UpdateProgress(progress)
	r.ledger.Update(stage, message, progress)
	r.logger.Debug("progress",
		zap.String("stage", string(stage)),
		zap.String("message", message),
		zap.Float64("progress", progress),
	)
}

func (r *pipelineRun) classify(ctx context.Context, prompt string) (plan, error) {
	resp, err := r.o.text.Complete(ctx, client.CompletionRequest{
		Prompt:       classifyPrompt(r.project, prompt),
		SystemPrompt: classifySystemPrompt,
		Temperature:  0.7,
		MaxTokens:    1000,
	})
	metrics.ProviderCalls.WithLabelValues("text", "classify", metrics.Result(err)).Inc()
	if err != nil {
		return plan{}, providerError("request classification", err)
	}
	r.project.Context.AddTurn(model.RoleAssistant, resp.Content)

	pl, err := parsePlan(resp.Content)
	if err != nil {
		r.logger.Warn("using default plan", zap.Error(err))
		return defaultPlan(r.project.Specification), nil
	}
	return pl, nil
}

func (r *pipelineRun) theory(ctx context.Context, pl plan) (*model.Arrangement, error) {
	spec := r.project.Specification
	arrangement := &model.Arrangement{
		Style:           pl.Style,
		Sections:        pl.Structure,
		Instruments:     pl.Instruments,
		EnergyNarrative: pl.MoodProgression,
	}

	err := r.workerTheory(ctx, arrangement)
	if err == nil {
		return arrangement, nil
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		return nil, err
	}

	resp, err := r.o.text.Complete(ctx, client.CompletionRequest{
		Prompt:    chordPrompt(spec),
		MaxTokens: 100,
	})
	metrics.ProviderCalls.WithLabelValues("text", "chords", metrics.Result(err)).Inc()
	if err != nil {
		return nil, providerError("chord generation", err)
	}
	chords, err := parseChords(resp.Content)
	if err != nil {
		r.logger.Warn("using default progression", zap.Error(err))
		chords = append([]string(nil), defaultChords...)
	}
	arrangement.ChordProgression = chords
	return arrangement, nil
}

func (r *pipelineRun) workerTheory(ctx context.Context, arrangement *model.Arrangement) error {
	worker, err := r.o.requireWorker()
	if err != nil {
		return err
	}
	spec := r.project.Specification
	result, err := worker.GenerateTheory(ctx, &client.TheoryRequest{
		Genre:           string(spec.Genre),
		Mood:            string(spec.Mood),
		TempoBpm:        int(spec.Tempo),
		Key:             string(spec.Key.Root),
		Mode:            string(spec.Key.Mode),
		DurationSeconds: spec.DurationSeconds,
		StyleTags:       spec.StyleTags,
	})
	metrics.ProviderCalls.WithLabelValues("worker", "theory", metrics.Result(err)).Inc()
	if err != nil {
		return providerError("theory generation", err)
	}

	arrangement.ChordProgression = result.ChordProgression
	if len(result.Sections) > 0 {
		arrangement.Sections = make([]string, 0, len(result.Sections))
		for _, s := range result.Sections {
			arrangement.Sections = append(arrangement.Sections, s.Name)
		}
	}
	arrangement.ScoreData = result.MidiData
	if len(arrangement.ChordProgression) == 0 {
		r.logger.Warn("worker returned no chords, using default progression")
		arrangement.ChordProgression = append([]string(nil), defaultChords...)
	}
	return nil
}

func (r *pipelineRun) synthesizeComponents(ctx context.Context) ([]string, error) {
	p := r.project
	spec := p.Specification
	paths := make([]string, 0, len(Components))

	for i, component := range Components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress := 0.4 + 0.4*float64(i)/float64(len(Components))
		r.report(StageSynthesizingAudio, "Generating "+component, progress)

		path := fmt.Sprintf("output/%s/%s.wav", p.ID, component)
		stem := model.NewStem(component, model.ComponentStems, path)

		payload, sampleRate, err := r.synthesizeComponent(ctx, spec, component)
		switch {
		case errors.Is(err, ErrProviderUnavailable):
			// registered without a payload
		case err != nil:
			return nil, err
		default:
			if err := r.attachPayload(ctx, &stem, payload, sampleRate); err != nil {
				return nil, err
			}
		}

		p.AddStem(stem)
		paths = append(paths, path)
	}

	return paths, nil
}

func (r *pipelineRun) synthesizeComponent(ctx context.Context, spec model.SongSpecification, component string) ([]byte, int, error) {
	worker, err := r.o.requireWorker()
	if err != nil {
		return nil, 0, err
	}
	stream, err := worker.SynthesizeAudio(ctx, &client.AudioRequest{
		Prompt:          componentPrompt(spec, component),
		DurationSeconds: spec.DurationSeconds,
		Genre:           string(spec.Genre),
		EnergyLevel:     0.6,
		SectionName:     component,
	})
	payload, sampleRate, err := collect(ctx, stream, err)
	metrics.ProviderCalls.WithLabelValues("worker", "synthesize_audio", metrics.Result(err)).Inc()
	if err != nil {
		return nil, 0, providerError("synthesize "+component, err)
	}
	return payload, sampleRate, nil
}

func (r *pipelineRun) synthesizeVocals(ctx context.Context) (string, error) {
	worker, err := r.o.requireWorker()
	if err != nil {
		return "", err
	}
	p := r.project
	spec := p.Specification
	path := fmt.Sprintf("output/%s/vocals.wav", p.ID)

	r.report(StageSynthesizingVocals, "Generating vocals", 0.8)
	stream, err := worker.SynthesizeVocals(ctx, &client.VocalRequest{
		Lyrics:           spec.Lyrics,
		VoiceType:        "neutral",
		Style:            fmt.Sprintf("%s %s", spec.Genre, spec.Mood),
		TargetDurationMs: spec.DurationSeconds * 1000,
	})
	payload, sampleRate, err := collect(ctx, stream, err)
	metrics.ProviderCalls.WithLabelValues("worker", "synthesize_vocals", metrics.Result(err)).Inc()
	if err != nil {
		return "", providerError("synthesize vocals", err)
	}

	stem := model.NewStem("vocals", model.ComponentVocals, path)
	if err := r.attachPayload(ctx, &stem, payload, sampleRate); err != nil {
		return "", err
	}
	p.AddStem(stem)
	return path, nil
}

func (r *pipelineRun) attachPayload(ctx context.Context, stem *model.Stem, payload []byte, sampleRate int) error {
	stem.FileSizeBytes = int64(len(payload))
	if sampleRate > 0 {
		stem.SampleRate = sampleRate
	}
	if len(payload) > 0 {
		stem.Duration = float64(r.project.Specification.DurationSeconds)
	}
	if len(payload) == 0 || r.o.storage == nil {
		return nil
	}

	url, err := r.o.storage.Upload(ctx, client.ArtifactKey(stem.Path), bytes.NewReader(payload), "audio/wav")
	metrics.ProviderCalls.WithLabelValues("storage", "upload", metrics.Result(err)).Inc()
	if err != nil {
		return providerError("upload "+stem.Name, err)
	}
	stem.URL = url
	return nil
}

// collect drains a chunk stream into one payload
func collect(ctx context.Context, stream client.ChunkStream, openErr error) ([]byte, int, error) {
	if openErr != nil {
		return nil, 0, openErr
	}
	defer stream.Close()

	var buf bytes.Buffer
	sampleRate := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), sampleRate, nil
		}
		if err != nil {
			return nil, 0, err
		}
		buf.Write(chunk.AudioData)
		if chunk.SampleRate > 0 {
			sampleRate = chunk.SampleRate
		}
	}
}

func (r *pipelineRun) fail(ctx context.Context, err error) *GenerationResult {
	msg := err.Error()
	r.logger.Error("generation failed", zap.Error(err))

	r.project.Fail(msg)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.persistTimeout)
	defer cancel()
	if serr := r.o.repo.Save(saveCtx, r.project); serr != nil {
		r.logger.Error("failed to persist failed project", zap.Error(serr))
	}

	_, _ = r.machine.TransitionTo(StageError, r.project.Context)
	r.ledger.Update(StageError, msg, 0)

	return failureResult(err)
}
