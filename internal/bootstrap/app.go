package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/diagnostics"
	"whisper-desktop/internal/domain"
	"whisper-desktop/internal/events"
	"whisper-desktop/internal/jobs"
	"whisper-desktop/internal/logging"
	"whisper-desktop/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrNoFinalArtifact is returned when saving a subtitle before a job completed.
var ErrNoFinalArtifact = errors.New("no completed transcription to save")

const feedSize = 1000

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, the job coordinator, the pipeline, and UI
// runtime callbacks.
type App struct {
	Config      config.AppConfig
	Settings    *config.Manager
	Jobs        *jobs.Coordinator
	Pipeline    modelPipeline
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     diagnosticsRunner
	feed        *jobs.Feed
	logger      *logging.Logger
	log         zerolog.Logger
	listeners   []func(name string, payload any)

	mu         sync.Mutex
	runtimeCtx context.Context
}

// modelPipeline is the pipeline surface the app needs beyond the
// coordinator's.
type modelPipeline interface {
	jobs.Pipeline
	ListDownloadedModels(settings domain.Settings) ([]string, error)
}

type diagnosticsRunner interface {
	Run(settings domain.Settings) domain.DiagnosticReport
}

// Option customizes how New builds an App.
type Option func(*buildOptions)

type buildOptions struct {
	configPath string
	listeners  []func(name string, payload any)
}

// WithConfigPath reads app options from path instead of the default
// ~/.whisper-desktop/app.toml.
func WithConfigPath(path string) Option {
	return func(o *buildOptions) {
		if p := strings.TrimSpace(path); p != "" {
			o.configPath = p
		}
	}
}

// WithEventListener receives every event pushed to the frontend, even when
// no window is attached.
func WithEventListener(fn func(name string, payload any)) Option {
	return func(o *buildOptions) { o.listeners = append(o.listeners, fn) }
}

// New builds the application from app.toml and the persisted user settings.
func New(opts ...Option) (*App, error) {
	return NewWithAssets(nil, opts...)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS, opts ...Option) (*App, error) {
	o := buildOptions{configPath: config.DefaultAppConfigPath()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := config.LoadAppConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Dir:    cfg.Logging.Dir,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	a := &App{
		Config:    cfg,
		assets:    assets,
		checker:   diagnostics.NewChecker(cfg),
		logger:    logger,
		log:       logger.Component("app"),
		listeners: o.listeners,
	}

	a.Settings = config.NewManager(
		config.NewJSONStore(cfg.SettingsPath()),
		config.WithSaveDelay(cfg.SaveDelay()),
		config.WithLogger(logger.Component("settings")),
		config.WithOnChange(func(s domain.Settings) { a.emit("settings:changed", s) }),
	)
	// A broken settings file leaves defaults in effect; the error stays
	// visible through LastError.
	_ = a.Settings.Load()

	bus := events.NewBus()
	bus.SetMirror(func(ev events.Event) { a.emit("pipeline:"+string(ev.Topic), ev) })

	a.Pipeline = transcribe.NewPipeline(cfg, a.Settings, bus, transcribe.WithLogger(logger.Component("pipeline")))
	if err := a.wire(bus); err != nil {
		_ = logger.Close()
		return nil, err
	}

	a.Diagnostics = a.checker.Run(a.Settings.Snapshot())
	a.log.Info().
		Str("data_dir", cfg.DataDir).
		Bool("diagnostics_failed", a.Diagnostics.HasFailures).
		Msg("application initialized")
	return a, nil
}

// wire builds the job feed and coordinator on top of Settings and Pipeline.
func (a *App) wire(source events.Source, opts ...jobs.Option) error {
	a.feed = jobs.NewFeed(feedSize)
	a.feed.OnRecord(func(entry jobs.FeedEntry) { a.emit("job:event", entry) })

	base := []jobs.Option{
		jobs.WithLogger(a.log.With().Str("component", "jobs").Logger()),
		jobs.WithFeed(a.feed),
		jobs.WithOnChange(func(state domain.JobState) { a.emit("job:state", state) }),
	}
	coordinator, err := jobs.New(a.Pipeline, a.Settings, source, append(base, opts...)...)
	if err != nil {
		return fmt.Errorf("start job coordinator: %w", err)
	}
	a.Jobs = coordinator
	return nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Whisper Desktop",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown:  a.Shutdown,
		Bind:        []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// Shutdown stops the coordinator, flushes pending settings and closes the
// log file.
func (a *App) Shutdown(context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	a.mu.Unlock()

	if err := a.Jobs.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close job coordinator")
	}
	if err := a.Settings.Close(); err != nil {
		a.log.Warn().Err(err).Msg("flush settings")
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns dependency checks against current settings.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run(a.Settings.Snapshot())
	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()
	return report
}

// GetSettings returns the in-memory settings record.
func (a *App) GetSettings() domain.Settings {
	return a.Settings.Snapshot()
}

// SettingsError reports the last settings load or save failure, if any.
func (a *App) SettingsError() string {
	if err := a.Settings.LastError(); err != nil {
		return err.Error()
	}
	return ""
}

// SetLocale switches the UI language.
func (a *App) SetLocale(locale string) domain.Settings {
	return a.Settings.SetLocale(domain.Locale(locale), config.SaveImmediate)
}

// SetLanguage sets the recognition language.
func (a *App) SetLanguage(lang string) domain.Settings {
	return a.Settings.SetLanguage(lang, config.SaveImmediate)
}

// SetModel selects the recognition model.
func (a *App) SetModel(name string) domain.Settings {
	settings := a.Settings.SetModel(name, config.SaveImmediate)
	a.RefreshDiagnostics()
	return settings
}

// SetVAD toggles voice activity detection.
func (a *App) SetVAD(enabled bool) domain.Settings {
	return a.Settings.SetVAD(enabled, config.SaveImmediate)
}

// SetDisableGPU toggles CPU-only recognition.
func (a *App) SetDisableGPU(disabled bool) domain.Settings {
	return a.Settings.SetDisableGPU(disabled, config.SaveImmediate)
}

// SetThreadCount is driven by a slider, so writes are debounced.
func (a *App) SetThreadCount(n float64) domain.Settings {
	return a.Settings.SetThreadCount(n, config.SaveDebounced)
}

// SetOptimization selects the acceleration backend.
func (a *App) SetOptimization(opt string) (domain.Settings, error) {
	o := domain.Optimization(opt)
	if !o.Valid() {
		return domain.Settings{}, fmt.Errorf("unknown optimization %q", opt)
	}
	settings := a.Settings.SetOptimization(o, config.SaveDebounced)
	a.RefreshDiagnostics()
	return settings, nil
}

// SetModelsPath sets the models directory from a typed path.
func (a *App) SetModelsPath(path string) domain.Settings {
	settings := a.Settings.SetModelsPath(path, config.SaveDebounced)
	a.RefreshDiagnostics()
	return settings
}

// ChooseModelsDirectory opens a directory picker and persists the choice
// right away. A cancelled dialog leaves settings untouched.
func (a *App) ChooseModelsDirectory() (domain.Settings, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.Settings{}, err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select models directory",
	})
	if err != nil {
		return domain.Settings{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return a.Settings.Snapshot(), nil
	}

	settings := a.Settings.SetModelsPath(path, config.SaveImmediate)
	a.RefreshDiagnostics()
	return settings, nil
}

// SaveSettings persists the current settings synchronously.
func (a *App) SaveSettings() error {
	if err := a.Settings.Save(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// PickInputFile opens a native file dialog and selects the chosen media.
// A cancelled dialog returns the current selection unchanged.
func (a *App) PickInputFile() (domain.SelectedMedia, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return domain.SelectedMedia{}, err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return domain.SelectedMedia{}, err
	}
	if strings.TrimSpace(path) == "" {
		media, _ := a.Jobs.SelectedMedia()
		return media, nil
	}

	return a.SelectFilePath(path)
}

// SelectFilePath selects media already on disk.
func (a *App) SelectFilePath(path string) (domain.SelectedMedia, error) {
	media, err := domain.NewMediaFromPath(path)
	if err != nil {
		return domain.SelectedMedia{}, err
	}
	if err := a.Jobs.SelectFile(media); err != nil {
		return domain.SelectedMedia{}, err
	}
	return media, nil
}

// SelectFileBytes selects media dropped into the window as raw bytes.
func (a *App) SelectFileBytes(name, kind string, data []byte) (domain.SelectedMedia, error) {
	media, err := domain.NewMediaFromBytes(name, kind, data)
	if err != nil {
		return domain.SelectedMedia{}, err
	}
	if err := a.Jobs.SelectFile(media); err != nil {
		return domain.SelectedMedia{}, err
	}
	return media, nil
}

// StartTranscription submits the selected media and returns the resulting
// job state.
func (a *App) StartTranscription() (domain.JobState, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		ctx = context.Background()
	}
	if err := a.Jobs.Submit(ctx); err != nil {
		return a.Jobs.State(), err
	}
	return a.Jobs.State(), nil
}

// StopTranscription stops the running recognition.
func (a *App) StopTranscription() error {
	return a.Jobs.Stop()
}

// ClearJob resets the job and the selected media.
func (a *App) ClearJob() error {
	return a.Jobs.Clear()
}

// JobState returns the current job snapshot.
func (a *App) JobState() domain.JobState {
	return a.Jobs.State()
}

// JobEvents returns all feed entries with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.FeedEntry {
	return a.feed.Since(sinceSeq)
}

// SaveSubtitle asks for a directory and copies the finished SRT there. A
// cancelled dialog returns an empty path.
func (a *App) SaveSubtitle() (string, error) {
	if !a.Jobs.State().HasFinalArtifact {
		return "", ErrNoFinalArtifact
	}

	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}
	dir, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Save subtitle to",
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(dir) == "" {
		return "", nil
	}

	return a.SaveSubtitleTo(dir)
}

// SaveSubtitleTo copies the finished SRT into dir.
func (a *App) SaveSubtitleTo(dir string) (string, error) {
	state := a.Jobs.State()
	if !state.HasFinalArtifact {
		return "", ErrNoFinalArtifact
	}

	path, err := transcribe.SaveSubtitle(state.AudioPath, dir)
	if err != nil {
		return "", err
	}
	a.log.Info().Str("job_id", state.JobID).Str("path", path).Msg("subtitle saved")
	return path, nil
}

// OpenModelsFolder opens the configured models directory in the file manager.
func (a *App) OpenModelsFolder() error {
	dir := strings.TrimSpace(a.Settings.Snapshot().ModelsPath)
	if dir == "" {
		return config.ErrModelsPathUnset
	}
	return openDirectory(dir)
}

// OpenDataFolder opens the application data directory in the file manager.
func (a *App) OpenDataFolder() error {
	return openDirectory(a.Config.DataDir)
}

// emit hands an event to the listeners and pushes it to the frontend once
// a window is attached.
func (a *App) emit(name string, payload any) {
	for _, fn := range a.listeners {
		fn(name, payload)
	}

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

func openDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("resolve folder: %w", err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}
	return openInFileManager(path)
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
