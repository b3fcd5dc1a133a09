package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/domain"
	"whisper-desktop/internal/events"
	"whisper-desktop/internal/jobs"
	"whisper-desktop/internal/transcribe"
)

// fakeStore keeps settings in memory for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save records the written settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saves++
	return nil
}

func (s *fakeStore) snapshot() (domain.Settings, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, s.saves
}

// fakePipeline accepts every job and reports recognition starts.
type fakePipeline struct {
	audioDir   string
	started    chan domain.RecognitionRequest
	downloaded []string
	listErr    error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{audioDir: os.TempDir(), started: make(chan domain.RecognitionRequest, 2)}
}

func (p *fakePipeline) CheckConfiguration(context.Context) (domain.ConfigCheck, error) {
	return domain.ConfigCheck{Valid: true}, nil
}

func (p *fakePipeline) CheckModelExists(context.Context, string) (bool, error) {
	return true, nil
}

func (p *fakePipeline) Convert(_ context.Context, media domain.SelectedMedia) (domain.ConversionResult, error) {
	return domain.ConversionResult{AudioPath: filepath.Join(p.audioDir, media.Name+".wav")}, nil
}

func (p *fakePipeline) StartRecognition(_ context.Context, req domain.RecognitionRequest) error {
	p.started <- req
	return nil
}

func (p *fakePipeline) RequestStop(context.Context) error {
	return nil
}

func (p *fakePipeline) ListDownloadedModels(domain.Settings) ([]string, error) {
	return p.downloaded, p.listErr
}

type fakeChecker struct{}

func (fakeChecker) Run(domain.Settings) domain.DiagnosticReport {
	return domain.DiagnosticReport{}
}

// emitted collects listener events by name.
type emitted struct {
	mu    sync.Mutex
	names map[string]int
}

func (e *emitted) record(name string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names[name]++
}

func (e *emitted) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.names[name]
}

func newTestApp(t *testing.T, pipeline *fakePipeline, store *fakeStore) (*App, *events.Bus, *emitted) {
	t.Helper()
	seen := &emitted{names: map[string]int{}}
	app := &App{
		Config:   config.DefaultAppConfig(),
		Pipeline: pipeline,
		checker:  fakeChecker{},
		log:      zerolog.Nop(),
	}
	app.listeners = append(app.listeners, seen.record)

	app.Settings = config.NewManager(store,
		config.WithSaveDelay(20*time.Millisecond),
		config.WithOnChange(func(s domain.Settings) { app.emit("settings:changed", s) }),
	)
	if err := app.Settings.Load(); err != nil {
		t.Fatalf("load settings: %v", err)
	}

	bus := events.NewBus()
	if err := app.wire(bus, jobs.WithClock(5*time.Millisecond, nil)); err != nil {
		t.Fatalf("wire: %v", err)
	}
	t.Cleanup(func() { _ = app.Jobs.Close() })
	return app, bus, seen
}

func selectSample(t *testing.T, app *App) {
	t.Helper()
	if _, err := app.SelectFileBytes("clip.wav", "audio/wav", []byte("RIFF0000WAVE")); err != nil {
		t.Fatalf("select file: %v", err)
	}
}

// TestStartTranscriptionRunsToCompletion drives a job through the bound methods.
func TestStartTranscriptionRunsToCompletion(t *testing.T) {
	pipeline := newFakePipeline()
	app, bus, seen := newTestApp(t, pipeline, &fakeStore{settings: config.DefaultSettings()})
	selectSample(t, app)

	if _, err := app.StartTranscription(); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-pipeline.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recognition was not started")
	}

	bus.Publish(events.Output("hello world"))
	bus.Publish(events.Completed())
	state := waitForPhase(t, app, domain.JobPhaseCompleted)

	if !state.HasFinalArtifact {
		t.Fatal("expected final artifact after completion")
	}
	if len(state.OutputLines) != 1 || state.OutputLines[0] != "hello world" {
		t.Fatalf("output = %v, want [hello world]", state.OutputLines)
	}

	entries := app.JobEvents(0)
	assertEntryTypeExists(t, entries, jobs.EntryTypeStatus)
	assertEntryTypeExists(t, entries, jobs.EntryTypeLog)
	assertEntryTypeExists(t, entries, jobs.EntryTypeResult)

	if seen.count("job:state") == 0 {
		t.Fatal("expected job:state pushes")
	}
	if seen.count("job:event") == 0 {
		t.Fatal("expected job:event pushes")
	}
}

// TestStartTranscriptionEnforcesSingleRunningJob checks the single-job guard.
func TestStartTranscriptionEnforcesSingleRunningJob(t *testing.T) {
	pipeline := newFakePipeline()
	app, _, _ := newTestApp(t, pipeline, &fakeStore{settings: config.DefaultSettings()})
	selectSample(t, app)

	if _, err := app.StartTranscription(); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	<-pipeline.started
	waitForPhase(t, app, domain.JobPhaseRecognizing)

	if _, err := app.StartTranscription(); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	if err := app.StopTranscription(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := app.JobState().Phase; got != domain.JobPhaseStopped {
		t.Fatalf("phase = %s, want %s", got, domain.JobPhaseStopped)
	}
	if err := app.ClearJob(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := app.Jobs.SelectedMedia(); ok {
		t.Fatal("expected selection cleared")
	}
}

// TestSaveSubtitleRequiresFinalArtifact rejects saving before completion.
func TestSaveSubtitleRequiresFinalArtifact(t *testing.T) {
	app, _, _ := newTestApp(t, newFakePipeline(), &fakeStore{settings: config.DefaultSettings()})

	if _, err := app.SaveSubtitle(); !errors.Is(err, ErrNoFinalArtifact) {
		t.Fatalf("save error = %v, want %v", err, ErrNoFinalArtifact)
	}
}

// TestSaveSubtitleToCopiesArtifact copies the SRT of a completed job.
func TestSaveSubtitleToCopiesArtifact(t *testing.T) {
	root := t.TempDir()
	pipeline := newFakePipeline()
	pipeline.audioDir = root
	app, bus, _ := newTestApp(t, pipeline, &fakeStore{settings: config.DefaultSettings()})
	selectSample(t, app)

	if _, err := app.StartTranscription(); err != nil {
		t.Fatalf("start: %v", err)
	}
	req := <-pipeline.started
	if err := os.WriteFile(transcribe.SubtitlePath(req.AudioPath), []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	waitForPhase(t, app, domain.JobPhaseRecognizing)
	bus.Publish(events.Completed())
	waitForPhase(t, app, domain.JobPhaseCompleted)

	target := filepath.Join(root, "export")
	path, err := app.SaveSubtitleTo(target)
	if err != nil {
		t.Fatalf("save subtitle: %v", err)
	}
	if path != filepath.Join(target, "clip.wav.srt") {
		t.Fatalf("path = %s, want %s", path, filepath.Join(target, "clip.wav.srt"))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat copy: %v", err)
	}
}

// TestSettersPersistAndPush checks immediate and debounced writes.
func TestSettersPersistAndPush(t *testing.T) {
	store := &fakeStore{settings: config.DefaultSettings()}
	app, _, seen := newTestApp(t, newFakePipeline(), store)

	app.SetLanguage("en")
	app.SetThreadCount(2)
	app.SetThreadCount(99)
	if err := app.Settings.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	saved, _ := store.snapshot()
	if saved.Language != "en" {
		t.Fatalf("language = %q, want en", saved.Language)
	}
	if saved.ThreadCount != domain.MaxThreadCount {
		t.Fatalf("threads = %d, want %d", saved.ThreadCount, domain.MaxThreadCount)
	}
	if got := seen.count("settings:changed"); got != 3 {
		t.Fatalf("settings:changed pushes = %d, want 3", got)
	}
}

// TestSetOptimizationRejectsUnknownBackend leaves settings untouched.
func TestSetOptimizationRejectsUnknownBackend(t *testing.T) {
	app, _, _ := newTestApp(t, newFakePipeline(), &fakeStore{settings: config.DefaultSettings()})

	if _, err := app.SetOptimization("metal"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	settings, err := app.SetOptimization(string(domain.OptimizationVulkan))
	if err != nil {
		t.Fatalf("set optimization: %v", err)
	}
	if settings.Optimization != domain.OptimizationVulkan {
		t.Fatalf("optimization = %s, want vulkan", settings.Optimization)
	}
}

// TestOpenModelsFolderNeedsPath fails fast without a models directory.
func TestOpenModelsFolderNeedsPath(t *testing.T) {
	app, _, _ := newTestApp(t, newFakePipeline(), &fakeStore{settings: config.DefaultSettings()})

	if err := app.OpenModelsFolder(); !errors.Is(err, config.ErrModelsPathUnset) {
		t.Fatalf("open error = %v, want %v", err, config.ErrModelsPathUnset)
	}
}

// waitForPhase polls until the job reaches the desired phase or times out.
func waitForPhase(t *testing.T, app *App, want domain.JobPhase) domain.JobState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state := app.JobState(); state.Phase == want {
			return state
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("phase = %s, want %s", app.JobState().Phase, want)
	return domain.JobState{}
}

// assertEntryTypeExists verifies at least one entry of given type exists.
func assertEntryTypeExists(t *testing.T, entries []jobs.FeedEntry, want jobs.EntryType) {
	t.Helper()
	for _, entry := range entries {
		if entry.Type == want {
			return
		}
	}
	t.Fatalf("entry type %s not found", want)
}
