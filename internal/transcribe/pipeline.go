package transcribe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/diagnostics"
	"whisper-desktop/internal/domain"
	"whisper-desktop/internal/events"
)

// Pipeline stages reported in PipelineError.
const (
	StageConverting  = "converting"
	StageRecognizing = "recognizing"
	StageExporting   = "exporting"
)

var (
	// ErrRecognitionRunning is returned when a second recognition is started.
	ErrRecognitionRunning = errors.New("recognition already running")
	// ErrNotRunning is returned by RequestStop when nothing is running.
	ErrNotRunning = errors.New("no recognition running")
	// ErrNoSubtitle is returned when the subtitle artifact does not exist.
	ErrNoSubtitle = errors.New("subtitle file not found")
)

const stderrTailLines = 20

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// SettingsSource provides the current user settings.
type SettingsSource interface {
	Snapshot() domain.Settings
}

// Pipeline runs ffmpeg conversion and whisper.cpp recognition as external
// processes. Recognition is asynchronous; its progress, transcript lines and
// outcome are published as events.
type Pipeline struct {
	cfg       config.AppConfig
	settings  SettingsSource
	publisher events.Publisher
	checker   *diagnostics.Checker
	log       zerolog.Logger
	runner    commandRunner
	starter   processStarter
	stat      func(name string) (os.FileInfo, error)
	mkdirAll  func(path string, perm os.FileMode) error
	writeFile func(name string, data []byte, perm os.FileMode) error
	remove    func(name string) error
	readDir   func(name string) ([]os.DirEntry, error)

	mu     sync.Mutex
	active *recognition
}

type recognition struct {
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// NewPipeline constructs the production pipeline with OS dependencies.
func NewPipeline(cfg config.AppConfig, settings SettingsSource, publisher events.Publisher, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		settings:  settings,
		publisher: publisher,
		checker:   diagnostics.NewChecker(cfg),
		log:       zerolog.Nop(),
		runner:    &execRunner{},
		starter:   &execStarter{},
		stat:      os.Stat,
		mkdirAll:  os.MkdirAll,
		writeFile: os.WriteFile,
		remove:    os.Remove,
		readDir:   os.ReadDir,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckConfiguration verifies tools and directories needed to run a job.
func (p *Pipeline) CheckConfiguration(ctx context.Context) (domain.ConfigCheck, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConfigCheck{}, err
	}
	return p.checker.ConfigurationCheck(p.settings.Snapshot()), nil
}

// CheckModelExists reports whether the named model file is present.
func (p *Pipeline) CheckModelExists(ctx context.Context, model string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := p.cfg.ModelPath(p.settings.Snapshot(), model)
	if err != nil {
		return false, err
	}
	if _, err := p.stat(path); err != nil {
		if diagnostics.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat model %s: %w", path, err)
	}
	return true, nil
}

// Convert transcodes the selected media to 16 kHz mono WAV in the working
// directory and probes its duration when ffprobe is available.
func (p *Pipeline) Convert(ctx context.Context, media domain.SelectedMedia) (domain.ConversionResult, error) {
	if err := media.Validate(); err != nil {
		return domain.ConversionResult{}, &PipelineError{Stage: StageConverting, Message: "invalid media selection", Err: err}
	}

	workDir := p.cfg.TempDir()
	if err := p.mkdirAll(workDir, 0o755); err != nil {
		return domain.ConversionResult{}, &PipelineError{
			Stage:   StageConverting,
			Message: fmt.Sprintf("cannot create working directory: %s", workDir),
			Err:     err,
		}
	}

	inputPath := media.SourcePath
	if inputPath == "" {
		inputPath = filepath.Join(workDir, "input-"+safeFileName(media.Name, "media"))
		if err := p.writeFile(inputPath, media.SourceBytes, 0o644); err != nil {
			return domain.ConversionResult{}, &PipelineError{
				Stage:   StageConverting,
				Message: "failed to stage in-memory media",
				Err:     err,
			}
		}
		defer func() { _ = p.remove(inputPath) }()
	} else if _, err := p.stat(inputPath); err != nil {
		return domain.ConversionResult{}, &PipelineError{
			Stage:   StageConverting,
			Message: fmt.Sprintf("cannot access input media: %s", inputPath),
			Err:     err,
		}
	}

	outPath := filepath.Join(workDir, audioFileName(media.Name))
	args := buildFFmpegArgs(inputPath, outPath)
	cmdResult, runErr := p.runner.Run(ctx, p.cfg.FFmpegPath, args...)
	log := CommandLog{
		Command:  p.cfg.FFmpegPath,
		Args:     args,
		ExitCode: cmdResult.ExitCode,
		Stdout:   cmdResult.Stdout,
		Stderr:   cmdResult.Stderr,
	}
	p.logCommand(log, runErr)
	if runErr != nil {
		return domain.ConversionResult{}, &PipelineError{
			Stage:      StageConverting,
			Message:    "ffmpeg audio conversion failed",
			CommandLog: log,
			Err:        runErr,
		}
	}

	if _, err := p.stat(outPath); err != nil {
		return domain.ConversionResult{}, &PipelineError{
			Stage:      StageConverting,
			Message:    "ffmpeg completed but output file is missing",
			CommandLog: log,
			Err:        err,
		}
	}

	result := domain.ConversionResult{AudioPath: outPath}
	if d, ok := p.probeDuration(ctx, outPath); ok {
		result.DurationSec = &d
	}
	return result, nil
}

// StartRecognition launches whisper.cpp on the converted audio and returns
// once the process is running. The process outlives ctx; use RequestStop.
func (p *Pipeline) StartRecognition(ctx context.Context, req domain.RecognitionRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return ErrRecognitionRunning
	}

	modelPath, err := p.cfg.ModelPath(req.Settings, req.Settings.Model)
	if err != nil {
		return &PipelineError{Stage: StageRecognizing, Message: err.Error(), Err: err}
	}

	binary := p.cfg.WhisperBinary(string(req.Settings.Optimization))
	args := buildWhisperArgs(req.Settings, modelPath, req.AudioPath, outputBase(req.AudioPath))

	runCtx, cancel := context.WithCancel(context.Background())
	proc, err := p.starter.Start(runCtx, binary, args...)
	if err != nil {
		cancel()
		return &PipelineError{
			Stage:      StageRecognizing,
			Message:    "failed to start whisper.cpp",
			CommandLog: CommandLog{Command: binary, Args: args, ExitCode: -1},
			Err:        err,
		}
	}

	rec := &recognition{cancel: cancel, done: make(chan struct{})}
	p.active = rec
	p.log.Info().Str("command", binary).Strs("args", args).Msg("recognition started")

	var total float64
	if req.DurationSec != nil {
		total = *req.DurationSec
	}
	go p.watch(rec, proc, SubtitlePath(req.AudioPath), total)
	return nil
}

// RequestStop kills the running recognition and waits for it to exit or for
// ctx to end. No terminal event is published for a process stopped this way.
func (p *Pipeline) RequestStop(ctx context.Context) error {
	p.mu.Lock()
	rec := p.active
	p.mu.Unlock()

	if rec == nil {
		return ErrNotRunning
	}
	rec.stopped.Store(true)
	rec.cancel()

	select {
	case <-rec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a recognition process is alive.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

func (p *Pipeline) watch(rec *recognition, proc process, srtPath string, total float64) {
	defer close(rec.done)
	defer rec.cancel()

	stderr := newTail(stderrTailLines)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readTranscript(proc.Stdout(), total)
	}()
	go func() {
		defer wg.Done()
		p.readDiagnostics(proc.Stderr(), total, stderr)
	}()
	wg.Wait()
	waitErr := proc.Wait()

	p.mu.Lock()
	if p.active == rec {
		p.active = nil
	}
	p.mu.Unlock()

	switch {
	case rec.stopped.Load():
		// The caller already moved on; a stopped event here could end a newer job.
		p.log.Info().Msg("recognition stopped on request")
	case signaled(waitErr):
		p.log.Warn().Err(waitErr).Msg("recognition killed externally")
		p.publisher.Publish(events.Stopped())
	case waitErr != nil:
		message := fmt.Sprintf("whisper.cpp exited with status %d", exitCode(waitErr))
		if detail := stderr.String(); detail != "" {
			message += ": " + detail
		}
		p.log.Warn().Err(waitErr).Str("stderr", stderr.String()).Msg("recognition failed")
		p.publisher.Publish(events.Failure(message, domain.SeverityFatal))
	default:
		if _, err := p.stat(srtPath); err != nil {
			err := &PipelineError{Stage: StageExporting, Message: "whisper.cpp completed but subtitle file is missing", Err: err}
			p.publisher.Publish(events.Failure(err.Error(), domain.SeverityFatal))
			return
		}
		p.log.Info().Str("srt", srtPath).Msg("recognition completed")
		p.publisher.Publish(events.Completed())
	}
}

// readTranscript publishes each segment line and derives progress from its
// end timestamp.
func (p *Pipeline) readTranscript(r io.Reader, total float64) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.publisher.Publish(events.Output(line))

		if end, ok := parseSegmentEnd(line); ok && total > 0 {
			p.publisher.Publish(events.Progress(domain.ProgressEvent{
				PositionSec: lo.Clamp(end, 0, total),
				TotalSec:    total,
				Percent:     lo.Clamp(end/total*100, 0, 100),
			}))
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn().Err(err).Msg("read whisper stdout")
	}
}

// readDiagnostics turns progress callback lines into progress events and
// error-looking lines into notices. Everything else only feeds the tail.
func (p *Pipeline) readDiagnostics(r io.Reader, total float64, stderr *tail) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if pct, ok := parseProgressPercent(line); ok {
			p.publisher.Publish(events.Progress(domain.ProgressEvent{
				PositionSec: total * pct / 100,
				TotalSec:    total,
				Percent:     pct,
			}))
			continue
		}
		stderr.add(line)
		p.log.Debug().Str("line", line).Msg("whisper stderr")
		if isErrorLine(line) {
			p.publisher.Publish(events.Failure(line, domain.SeverityNotice))
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn().Err(err).Msg("read whisper stderr")
	}
}

func (p *Pipeline) probeDuration(ctx context.Context, audioPath string) (float64, bool) {
	args := buildFFprobeArgs(audioPath)
	res, err := p.runner.Run(ctx, p.cfg.FFprobePath, args...)
	if err != nil {
		p.log.Debug().Err(err).Msg("ffprobe unavailable, duration unknown")
		return 0, false
	}
	return parseDuration(res.Stdout)
}

func (p *Pipeline) logCommand(log CommandLog, err error) {
	event := p.log.Debug()
	if err != nil {
		event = p.log.Warn().Err(err).Str("stderr", log.Stderr)
	}
	event.Str("command", log.Command).Strs("args", log.Args).Int("exit_code", log.ExitCode).Msg("command finished")
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds conversion CLI args for mono 16k PCM WAV output.
func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

// buildFFprobeArgs asks ffprobe for the container duration only.
func buildFFprobeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// buildWhisperArgs builds whisper.cpp args for SRT export with progress output.
func buildWhisperArgs(settings domain.Settings, modelPath, audioPath, outBase string) []string {
	threads := lo.Clamp(settings.ThreadCount, domain.MinThreadCount, domain.MaxThreadCount)
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-osrt",
		"-pp",
		"-t", strconv.Itoa(threads),
	}

	if lang := normalizeLanguage(settings.Language); lang != "" {
		args = append(args, "-l", lang)
	}
	if settings.DisableGPU {
		args = append(args, "-ng")
	}
	if settings.EnableVAD {
		args = append(args, "--vad")
	}

	return args
}

// audioFileName builds the converted audio filename from the media name.
func audioFileName(mediaName string) string {
	base := filepath.Base(mediaName)
	return safeFileName(strings.TrimSuffix(base, filepath.Ext(base)), "audio") + ".wav"
}

func safeFileName(name, fallback string) string {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fallback
	}
	return name
}

func outputBase(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
}

// SubtitlePath is where whisper.cpp writes the SRT for a converted audio file.
func SubtitlePath(audioPath string) string {
	return outputBase(audioPath) + ".srt"
}

// NewPipelineForTests constructs a pipeline with injectable dependencies.
func NewPipelineForTests(
	cfg config.AppConfig,
	settings SettingsSource,
	publisher events.Publisher,
	checker *diagnostics.Checker,
	runner commandRunner,
	starter processStarter,
) *Pipeline {
	p := NewPipeline(cfg, settings, publisher)
	p.checker = checker
	p.runner = runner
	p.starter = starter
	return p
}
