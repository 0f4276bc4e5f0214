package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skyreel/vidgen/genconfig"
	"github.com/skyreel/vidgen/history"
	"github.com/skyreel/vidgen/jobs"
	"github.com/skyreel/vidgen/models"
	"github.com/skyreel/vidgen/output"
)

// fakeTransport scripts the remote job lifecycle.
type fakeTransport struct {
	mu          sync.Mutex
	createFn    func(remoteModelID string, input map[string]any) (*jobs.Job, error)
	getFn       func(id string) (*jobs.Job, error)
	cancelFn    func(id string) (*jobs.Job, error)
	streamFn    func(id string) (<-chan jobs.StreamEvent, error)
	createCalls int
}

func (f *fakeTransport) Create(_ context.Context, remoteModelID string, input map[string]any) (*jobs.Job, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	return f.createFn(remoteModelID, input)
}

func (f *fakeTransport) Get(_ context.Context, id string) (*jobs.Job, error) {
	return f.getFn(id)
}

func (f *fakeTransport) Cancel(_ context.Context, id string) (*jobs.Job, error) {
	if f.cancelFn == nil {
		return nil, errors.New("not scripted")
	}
	return f.cancelFn(id)
}

func (f *fakeTransport) Stream(_ context.Context, id string) (<-chan jobs.StreamEvent, error) {
	return f.streamFn(id)
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, source string) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("artifact-bytes")), "video/mp4", nil
}

// succeedingTransport completes any submitted job with one output URL.
func succeedingTransport() *fakeTransport {
	return &fakeTransport{
		createFn: func(model string, input map[string]any) (*jobs.Job, error) {
			return &jobs.Job{ID: "pred-1", Status: jobs.StatusPending}, nil
		},
		getFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{ID: id, Status: jobs.StatusSucceeded, Outputs: []string{"https://cdn.example.com/out.mp4"}}, nil
		},
	}
}

type env struct {
	generator *Generator
	transport *fakeTransport
	outputDir string
	history   *history.Store
}

func newEnv(t *testing.T, transport *fakeTransport) *env {
	t.Helper()

	configs := genconfig.NewStore("")
	configs.Add("yeti", genconfig.Document{
		"subject": map[string]any{"description": "a yeti"},
		"scene":   map[string]any{"location": "snowy ridge"},
	})
	configs.Add("template", genconfig.Document{
		"subject":           map[string]any{"description": "a fox"},
		"generation_params": map[string]any{"resolution": "720p"},
	})
	configs.Add("child", genconfig.Document{
		genconfig.ExtendsKey: "template",
		"subject":            map[string]any{"description": "a red fox"},
	})

	outputDir := t.TempDir()
	client := jobs.NewClient(transport,
		jobs.WithRetryPolicy(jobs.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}),
		jobs.WithPollInterval(time.Millisecond),
	)
	hist := history.NewStore(t.TempDir())
	manager := output.NewManager(outputDir, output.WithFetcher(stubFetcher{}))

	return &env{
		generator: NewGenerator(configs, models.DefaultRegistry(), client, manager, hist),
		transport: transport,
		outputDir: outputDir,
		history:   hist,
	}
}

func TestGenerateSuccess(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	result, err := e.generator.Generate(context.Background(), Request{ModelType: "veo3", ConfigName: "yeti"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(result.OutputFiles) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(result.OutputFiles))
	}
	wantPrefix := filepath.Join(e.outputDir, "veo3", "yeti_")
	if !strings.HasPrefix(result.OutputDir, wantPrefix) {
		t.Errorf("output dir %s not under %s", result.OutputDir, wantPrefix)
	}
	if !strings.Contains(result.Prompt, "a yeti") {
		t.Errorf("prompt missing subject: %q", result.Prompt)
	}

	records, err := e.history.List(history.Filter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 || !records[0].Succeeded() {
		t.Errorf("expected one succeeded record, got %+v", records)
	}
	if records[0].JobID != "pred-1" || records[0].OutputDir != result.OutputDir {
		t.Errorf("record not linked to attempt: %+v", records[0])
	}
}

func TestGenerateWithExtendedConfig(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	result, err := e.generator.Generate(context.Background(), Request{ModelType: "veo3", ConfigName: "child"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(result.Prompt, "a red fox") {
		t.Errorf("child override lost: %q", result.Prompt)
	}
	// Inherited generation param from the template.
	if result.Params["resolution"] != "720p" {
		t.Errorf("inherited param lost: %v", result.Params)
	}
}

func TestGenerateUnknownModelTypeStillAudited(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	_, err := e.generator.Generate(context.Background(), Request{ModelType: "nonexistent", ConfigName: "yeti"})
	var unknown *models.UnknownModelTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelTypeError, got %v", err)
	}
	if e.transport.createCalls != 0 {
		t.Error("no job may be submitted for an unknown model type")
	}

	records, _ := e.history.List(history.Filter{})
	if len(records) != 1 {
		t.Fatalf("failure must still append a history record, got %d", len(records))
	}
	if records[0].Status != "failed" || records[0].Error == "" {
		t.Errorf("unexpected failure record: %+v", records[0])
	}
	if records[0].OutputDir == "" {
		t.Fatal("failure metadata directory not recorded")
	}
	if _, err := os.Stat(filepath.Join(records[0].OutputDir, output.MetadataFileName)); err != nil {
		t.Errorf("failure metadata missing: %v", err)
	}
}

func TestGenerateMissingConfigStillAudited(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	_, err := e.generator.Generate(context.Background(), Request{ModelType: "veo3", ConfigName: "missing"})
	var notFound *genconfig.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	records, _ := e.history.List(history.Filter{})
	if len(records) != 1 || records[0].Status != "failed" {
		t.Errorf("missing config must still be audited: %+v", records)
	}
}

func TestGenerateRemoteFailureAudited(t *testing.T) {
	transport := &fakeTransport{
		createFn: func(model string, input map[string]any) (*jobs.Job, error) {
			return &jobs.Job{ID: "pred-1", Status: jobs.StatusPending}, nil
		},
		getFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{ID: id, Status: jobs.StatusFailed, Error: "NSFW content detected"}, nil
		},
	}
	e := newEnv(t, transport)

	_, err := e.generator.Generate(context.Background(), Request{ModelType: "veo3", ConfigName: "yeti"})
	var pe *jobs.PredictionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
	if pe.Detail != "NSFW content detected" {
		t.Errorf("remote detail lost: %q", pe.Detail)
	}

	records, _ := e.history.List(history.Filter{})
	if len(records) != 1 || records[0].Status != "failed" || records[0].JobID != "pred-1" {
		t.Errorf("remote failure must be audited with the job id: %+v", records)
	}
}

func TestGenerateInlineConfig(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	result, err := e.generator.Generate(context.Background(), Request{
		ModelType: "veo3",
		Inline:    genconfig.Document{"subject": map[string]any{"description": "an otter"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(result.Prompt, "an otter") {
		t.Errorf("inline config not used: %q", result.Prompt)
	}
	if result.Record.ConfigName != "inline" {
		t.Errorf("inline attempts should be named: %+v", result.Record)
	}
}

func TestPreviewDoesNotTouchNetworkOrDisk(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	preview, err := e.generator.Preview(Request{ModelType: "veo3", ConfigName: "yeti"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if preview.RemoteModelID != "google/veo-3" {
		t.Errorf("unexpected remote model: %s", preview.RemoteModelID)
	}
	if !strings.Contains(preview.Prompt, "a yeti") {
		t.Errorf("unexpected prompt: %q", preview.Prompt)
	}

	if e.transport.createCalls != 0 {
		t.Error("preview must not submit")
	}
	records, _ := e.history.List(history.Filter{})
	if len(records) != 0 {
		t.Error("preview must not append history")
	}
	entries, _ := os.ReadDir(e.outputDir)
	if len(entries) != 0 {
		t.Error("preview must not write outputs")
	}
}

func TestGenerateBatchIsolatesFailures(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	requests := []Request{
		{ModelType: "veo3", ConfigName: "yeti"},
		{ModelType: "nonexistent", ConfigName: "yeti"},
		{ModelType: "veo3", ConfigName: "child"},
	}
	results := e.generator.GenerateBatch(context.Background(), requests, 2)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("healthy requests must succeed: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil {
		t.Error("unknown model type must fail its own request only")
	}

	records, _ := e.history.List(history.Filter{})
	if len(records) != 3 {
		t.Errorf("every attempt must be audited, got %d records", len(records))
	}
}

func TestGenerateStream(t *testing.T) {
	transport := succeedingTransport()
	transport.streamFn = func(id string) (<-chan jobs.StreamEvent, error) {
		ch := make(chan jobs.StreamEvent, 3)
		ch <- jobs.StreamEvent{Data: "Once"}
		ch <- jobs.StreamEvent{Data: " upon"}
		close(ch)
		return ch, nil
	}
	transport.getFn = func(id string) (*jobs.Job, error) {
		return &jobs.Job{ID: id, Status: jobs.StatusSucceeded, Outputs: []string{"https://cdn.example.com/story.txt"}}, nil
	}
	e := newEnv(t, transport)

	var text strings.Builder
	result, err := e.generator.GenerateStream(context.Background(), Request{
		ModelType: "llama",
		Inline:    genconfig.Document{"subject": map[string]any{"description": "a story"}},
	}, func(delta string) { text.WriteString(delta) })
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if text.String() != "Once upon" {
		t.Errorf("deltas lost: %q", text.String())
	}
	if len(result.OutputFiles) != 1 {
		t.Errorf("streamed attempt must still persist artifacts: %+v", result.OutputFiles)
	}
}

func TestGenerateStreamRejectsNonStreamingModel(t *testing.T) {
	e := newEnv(t, succeedingTransport())

	_, err := e.generator.GenerateStream(context.Background(), Request{ModelType: "veo3", ConfigName: "yeti"}, nil)
	if err == nil || !strings.Contains(err.Error(), "does not support streaming") {
		t.Fatalf("expected streaming capability error, got %v", err)
	}
}

func TestResumePersistsFinishedJob(t *testing.T) {
	transport := &fakeTransport{
		getFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{
				ID:      id,
				Status:  jobs.StatusSucceeded,
				Input:   map[string]any{"prompt": "a yeti on a ridge"},
				Outputs: []string{"https://cdn.example.com/out.mp4"},
			}, nil
		},
	}
	e := newEnv(t, transport)

	result, err := e.generator.Resume(context.Background(), "veo3", "pred-7", time.Second)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(result.OutputFiles) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(result.OutputFiles))
	}
	if result.Prompt != "a yeti on a ridge" {
		t.Errorf("prompt not recovered from job input: %q", result.Prompt)
	}

	records, _ := e.history.List(history.Filter{})
	if len(records) != 1 || !records[0].Succeeded() || records[0].JobID != "pred-7" {
		t.Errorf("resumed attempt must be recorded: %+v", records)
	}
}

func TestCancelRunningJob(t *testing.T) {
	transport := &fakeTransport{
		getFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{ID: id, Status: jobs.StatusRunning}, nil
		},
		cancelFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{ID: id, Status: jobs.StatusCanceled}, nil
		},
	}
	e := newEnv(t, transport)

	job, err := e.generator.Cancel(context.Background(), "pred-9")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if job.Status != jobs.StatusCanceled {
		t.Errorf("unexpected status: %v", job.Status)
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	transport := &fakeTransport{
		getFn: func(id string) (*jobs.Job, error) {
			return &jobs.Job{ID: id, Status: jobs.StatusSucceeded}, nil
		},
	}
	e := newEnv(t, transport)

	job, err := e.generator.Cancel(context.Background(), "pred-9")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	// The unscripted transport Cancel would have errored if called.
	if job.Status != jobs.StatusSucceeded {
		t.Errorf("terminal job must be returned as-is: %v", job.Status)
	}
}

func TestGenerateEmitsProgressEvents(t *testing.T) {
	emitter := NewEventEmitter("attempt", 16)
	transport := succeedingTransport()

	configs := genconfig.NewStore("")
	configs.Add("yeti", genconfig.Document{"subject": map[string]any{"description": "a yeti"}})
	client := jobs.NewClient(transport, jobs.WithPollInterval(time.Millisecond))
	g := NewGenerator(configs, models.DefaultRegistry(), client,
		output.NewManager(t.TempDir(), output.WithFetcher(stubFetcher{})),
		history.NewStore(t.TempDir()),
		WithEmitter(emitter),
	)

	if _, err := g.Generate(context.Background(), Request{ModelType: "veo3", ConfigName: "yeti"}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	emitter.Close()

	seen := map[EventKind]bool{}
	for ev := range emitter.Events() {
		seen[ev.Kind] = true
	}
	for _, want := range []EventKind{EventConfigResolved, EventPromptBuilt, EventJobSubmitted, EventJobCompleted, EventOutputPersisted} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}
