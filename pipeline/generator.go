// Package pipeline composes config resolution, prompt building, job
// execution, artifact persistence and history into the generate and
// preview operations.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/skyreel/vidgen/enhance"
	"github.com/skyreel/vidgen/genconfig"
	"github.com/skyreel/vidgen/history"
	"github.com/skyreel/vidgen/jobs"
	"github.com/skyreel/vidgen/models"
	"github.com/skyreel/vidgen/output"
)

// DefaultTimeout bounds the polling wait of one generation attempt.
const DefaultTimeout = 10 * time.Minute

// Request names one generation attempt.
type Request struct {
	// ModelType selects the registered adapter.
	ModelType string
	// ConfigName is resolved through the config store. Ignored when Inline
	// is set.
	ConfigName string
	// Inline supplies the configuration document directly.
	Inline genconfig.Document
	// Timeout bounds the polling wait; zero means DefaultTimeout.
	Timeout time.Duration
}

func (r Request) name() string {
	if r.ConfigName != "" {
		return r.ConfigName
	}
	return "inline"
}

// Result is the definite outcome of one attempt.
type Result struct {
	AttemptID   string
	Job         *jobs.Job
	Prompt      string
	Params      map[string]any
	OutputDir   string
	OutputFiles []string
	Record      history.Record
	Duration    time.Duration
}

// Preview is the dry-run outcome: the request that would be submitted.
type Preview struct {
	ModelType     string
	RemoteModelID string
	Prompt        string
	Params        map[string]any
}

// Generator runs generation attempts end to end.
type Generator struct {
	configs  *genconfig.Store
	registry *models.Registry
	client   *jobs.Client
	outputs  *output.Manager
	history  *history.Store
	enhancer enhance.Enhancer
	logger   zerolog.Logger
	emitter  *EventEmitter
	timeout  time.Duration
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithEnhancer enables prompt enhancement before submission.
func WithEnhancer(e enhance.Enhancer) GeneratorOption {
	return func(g *Generator) { g.enhancer = e }
}

// WithLogger sets the generator logger.
func WithLogger(logger zerolog.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = logger }
}

// WithEmitter publishes progress events to the given emitter.
func WithEmitter(e *EventEmitter) GeneratorOption {
	return func(g *Generator) { g.emitter = e }
}

// WithTimeout overrides the default polling timeout.
func WithTimeout(timeout time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = timeout }
}

// NewGenerator wires the pipeline components together.
func NewGenerator(configs *genconfig.Store, registry *models.Registry, client *jobs.Client, outputs *output.Manager, hist *history.Store, opts ...GeneratorOption) *Generator {
	g := &Generator{
		configs:  configs,
		registry: registry,
		client:   client,
		outputs:  outputs,
		history:  hist,
		enhancer: enhance.Noop{},
		logger:   zerolog.Nop(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) emit(kind EventKind, data map[string]any) {
	if g.emitter != nil {
		g.emitter.Emit(kind, data)
	}
}

// Generate runs one attempt end to end. Every failure, from config
// resolution onward, still produces a failure metadata directory and a
// history record before the error is returned, so attempts stay auditable.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	attemptID := uuid.NewString()
	started := time.Now()
	logger := g.logger.With().
		Str("attempt_id", attemptID).
		Str("model_type", req.ModelType).
		Str("config", req.name()).
		Logger()

	record := history.Record{
		ID:         attemptID,
		ModelType:  req.ModelType,
		ConfigName: req.name(),
		Status:     string(jobs.StatusFailed),
	}

	doc, adapter, err := g.resolve(req)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	g.emit(EventConfigResolved, map[string]any{"config": req.name()})

	promptText, params := adapter.BuildRequest(doc)
	record.Prompt = promptText
	g.emit(EventPromptBuilt, map[string]any{"prompt": promptText})

	if enhanced, err := g.enhancer.Enhance(ctx, promptText); err != nil {
		logger.Warn().Err(err).Msg("prompt enhancement degraded, using original prompt")
		g.emit(EventWarning, map[string]any{"reason": err.Error()})
	} else if enhanced != promptText {
		promptText = enhanced
		record.Prompt = promptText
		g.emit(EventPromptEnhanced, map[string]any{"prompt": promptText})
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}

	job, err := g.client.Submit(ctx, adapter.RemoteModelID(), promptText, params)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	record.JobID = job.ID
	logger.Info().Str("job_id", job.ID).Msg("job submitted")
	g.emit(EventJobSubmitted, map[string]any{"job_id": job.ID})

	job, err = g.client.AwaitCompletion(ctx, job, timeout)
	if job != nil {
		record.JobID = job.ID
	}
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	g.emit(EventJobCompleted, map[string]any{"job_id": job.ID, "status": string(job.Status)})

	if job.Status == jobs.StatusCanceled {
		record.Status = string(jobs.StatusCanceled)
		return nil, g.fail(logger, record, started, fmt.Errorf("job %s was canceled", job.ID))
	}

	meta := output.Metadata{
		AttemptID:  attemptID,
		ModelType:  req.ModelType,
		ConfigName: req.name(),
		Prompt:     promptText,
		Params:     params,
		JobID:      job.ID,
		Status:     string(job.Status),
	}
	artifacts, dir, err := g.outputs.Save(ctx, job, meta, adapter.Kind().FallbackExtension())
	if err != nil {
		record.OutputDir = dir
		return nil, g.failNoMetadata(logger, record, started, err)
	}
	g.emit(EventOutputPersisted, map[string]any{"dir": dir})

	record.Status = string(jobs.StatusSucceeded)
	record.OutputDir = dir
	record.Duration = time.Since(started)
	record, err = g.history.Append(record)
	if err != nil {
		// Artifacts exist on disk; surface the ledger failure.
		return nil, err
	}

	files := make([]string, len(artifacts))
	for i, a := range artifacts {
		files[i] = a.Path
	}
	logger.Info().Str("dir", dir).Int("artifacts", len(files)).Dur("elapsed", record.Duration).Msg("generation succeeded")

	return &Result{
		AttemptID:   attemptID,
		Job:         job,
		Prompt:      promptText,
		Params:      params,
		OutputDir:   dir,
		OutputFiles: files,
		Record:      record,
		Duration:    record.Duration,
	}, nil
}

// Preview resolves the config and builds the request without any network
// call or persistence.
func (g *Generator) Preview(req Request) (*Preview, error) {
	doc, adapter, err := g.resolve(req)
	if err != nil {
		return nil, err
	}
	promptText, params := adapter.BuildRequest(doc)
	return &Preview{
		ModelType:     adapter.ModelType(),
		RemoteModelID: adapter.RemoteModelID(),
		Prompt:        promptText,
		Params:        params,
	}, nil
}

// Resume picks up a previously submitted job by ID, waits for completion
// and persists its artifacts. Used after a timeout surfaced the job ID.
func (g *Generator) Resume(ctx context.Context, modelType, jobID string, timeout time.Duration) (*Result, error) {
	attemptID := uuid.NewString()
	started := time.Now()
	logger := g.logger.With().Str("attempt_id", attemptID).Str("job_id", jobID).Logger()

	adapter, err := g.registry.Get(modelType)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = g.timeout
	}

	record := history.Record{
		ID:         attemptID,
		ModelType:  modelType,
		ConfigName: "resume",
		JobID:      jobID,
		Status:     string(jobs.StatusFailed),
	}

	job, err := g.client.Get(ctx, jobID)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	job, err = g.client.AwaitCompletion(ctx, job, timeout)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	if job.Status == jobs.StatusCanceled {
		record.Status = string(jobs.StatusCanceled)
		return nil, g.fail(logger, record, started, fmt.Errorf("job %s was canceled", jobID))
	}

	meta := output.Metadata{
		AttemptID: attemptID,
		ModelType: modelType,
		Prompt:    promptFromInput(job),
		Params:    job.Input,
		JobID:     job.ID,
		Status:    string(job.Status),
	}
	artifacts, dir, err := g.outputs.Save(ctx, job, meta, adapter.Kind().FallbackExtension())
	if err != nil {
		record.OutputDir = dir
		return nil, g.failNoMetadata(logger, record, started, err)
	}

	record.Status = string(jobs.StatusSucceeded)
	record.Prompt = meta.Prompt
	record.OutputDir = dir
	record.Duration = time.Since(started)
	record, err = g.history.Append(record)
	if err != nil {
		return nil, err
	}

	files := make([]string, len(artifacts))
	for i, a := range artifacts {
		files[i] = a.Path
	}
	return &Result{
		AttemptID:   attemptID,
		Job:         job,
		Prompt:      meta.Prompt,
		Params:      job.Input,
		OutputDir:   dir,
		OutputFiles: files,
		Record:      record,
		Duration:    record.Duration,
	}, nil
}

// Cancel asks the remote service to stop a job by ID. Cancelling a job
// that already reached a terminal state is a no-op.
func (g *Generator) Cancel(ctx context.Context, jobID string) (*jobs.Job, error) {
	job, err := g.client.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return g.client.Cancel(ctx, job)
}

// GenerateStream runs one attempt like Generate but relays incremental
// output through onDelta as the remote model produces it. The adapter must
// advertise streaming support. Persistence and history behave exactly as
// in Generate.
func (g *Generator) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (*Result, error) {
	adapter, err := g.registry.Get(req.ModelType)
	if err != nil {
		return nil, err
	}
	streamer, ok := adapter.(models.Streamer)
	if !ok || !streamer.SupportsStreaming() {
		return nil, fmt.Errorf("model type %q does not support streaming", req.ModelType)
	}

	attemptID := uuid.NewString()
	started := time.Now()
	logger := g.logger.With().
		Str("attempt_id", attemptID).
		Str("model_type", req.ModelType).
		Str("config", req.name()).
		Logger()

	record := history.Record{
		ID:         attemptID,
		ModelType:  req.ModelType,
		ConfigName: req.name(),
		Status:     string(jobs.StatusFailed),
	}

	doc := req.Inline
	if doc == nil {
		doc, err = g.configs.Resolve(req.ConfigName)
		if err != nil {
			return nil, g.fail(logger, record, started, err)
		}
	}
	promptText, params := adapter.BuildRequest(doc)
	record.Prompt = promptText

	job, err := g.client.Submit(ctx, adapter.RemoteModelID(), promptText, params)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	record.JobID = job.ID
	g.emit(EventJobSubmitted, map[string]any{"job_id": job.ID})

	events, err := g.client.Stream(ctx, job)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	for ev := range events {
		if ev.Err != nil {
			return nil, g.fail(logger, record, started, ev.Err)
		}
		if onDelta != nil {
			onDelta(ev.Data)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	job, err = g.client.AwaitCompletion(ctx, job, timeout)
	if err != nil {
		return nil, g.fail(logger, record, started, err)
	}
	g.emit(EventJobCompleted, map[string]any{"job_id": job.ID, "status": string(job.Status)})

	meta := output.Metadata{
		AttemptID:  attemptID,
		ModelType:  req.ModelType,
		ConfigName: req.name(),
		Prompt:     promptText,
		Params:     params,
		JobID:      job.ID,
		Status:     string(job.Status),
	}
	artifacts, dir, err := g.outputs.Save(ctx, job, meta, adapter.Kind().FallbackExtension())
	if err != nil {
		record.OutputDir = dir
		return nil, g.failNoMetadata(logger, record, started, err)
	}
	g.emit(EventOutputPersisted, map[string]any{"dir": dir})

	record.Status = string(jobs.StatusSucceeded)
	record.OutputDir = dir
	record.Duration = time.Since(started)
	record, err = g.history.Append(record)
	if err != nil {
		return nil, err
	}

	files := make([]string, len(artifacts))
	for i, a := range artifacts {
		files[i] = a.Path
	}
	return &Result{
		AttemptID:   attemptID,
		Job:         job,
		Prompt:      promptText,
		Params:      params,
		OutputDir:   dir,
		OutputFiles: files,
		Record:      record,
		Duration:    record.Duration,
	}, nil
}

// BatchResult pairs one batch request with its outcome.
type BatchResult struct {
	Request Request
	Result  *Result
	Err     error
}

// GenerateBatch runs the requests concurrently, at most limit at a time,
// and always returns one BatchResult per request in input order. Individual
// failures do not stop the batch.
func (g *Generator) GenerateBatch(ctx context.Context, requests []Request, limit int) []BatchResult {
	if limit <= 0 {
		limit = 2
	}
	results := make([]BatchResult, len(requests))

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(limit)
	for i, req := range requests {
		grp.Go(func() error {
			result, err := g.Generate(ctx, req)
			results[i] = BatchResult{Request: req, Result: result, Err: err}
			// Failures are recorded per request, never abort siblings.
			return nil
		})
	}
	grp.Wait()
	return results
}

func (g *Generator) resolve(req Request) (genconfig.Document, models.Adapter, error) {
	adapter, err := g.registry.Get(req.ModelType)
	if err != nil {
		return nil, nil, err
	}
	doc := req.Inline
	if doc == nil {
		doc, err = g.configs.Resolve(req.ConfigName)
		if err != nil {
			return nil, nil, err
		}
	}
	return doc, adapter, nil
}

// fail records a failed attempt in both the output tree and the history
// ledger, then returns err unchanged.
func (g *Generator) fail(logger zerolog.Logger, record history.Record, started time.Time, err error) error {
	record.Error = err.Error()
	record.Duration = time.Since(started)

	meta := output.Metadata{
		AttemptID:  record.ID,
		ModelType:  record.ModelType,
		ConfigName: record.ConfigName,
		Prompt:     record.Prompt,
		JobID:      record.JobID,
		Status:     record.Status,
		Error:      record.Error,
	}
	dir, werr := g.outputs.WriteFailure(meta)
	if werr != nil {
		logger.Error().Err(werr).Msg("failed to write failure metadata")
	} else {
		record.OutputDir = dir
	}
	return g.appendFailure(logger, record, err)
}

// failNoMetadata records a failure whose metadata the output manager
// already wrote itself.
func (g *Generator) failNoMetadata(logger zerolog.Logger, record history.Record, started time.Time, err error) error {
	record.Error = err.Error()
	record.Duration = time.Since(started)
	return g.appendFailure(logger, record, err)
}

func (g *Generator) appendFailure(logger zerolog.Logger, record history.Record, err error) error {
	if _, herr := g.history.Append(record); herr != nil {
		logger.Error().Err(herr).Msg("failed to append history record")
	}
	logger.Error().Err(err).Msg("generation failed")
	g.emit(EventError, map[string]any{"error": err.Error()})
	return err
}

func promptFromInput(job *jobs.Job) string {
	if job.Input == nil {
		return ""
	}
	if p, ok := job.Input["prompt"].(string); ok {
		return p
	}
	return ""
}
