// Package jobs owns the lifecycle of the single transcription job: admission,
// conversion, recognition, and the terminal outcome.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"whisper-desktop/internal/domain"
	"whisper-desktop/internal/events"
)

var (
	// ErrJobAlreadyRunning is returned when submitting while a job is in flight.
	ErrJobAlreadyRunning = errors.New("job already running")
	// ErrJobNotCleared is returned when submitting over a finished job that was not cleared.
	ErrJobNotCleared = errors.New("previous job not cleared")
	// ErrNoRunningJob is returned when stop is requested outside recognition.
	ErrNoRunningJob = errors.New("no running job")
	// ErrJobInFlight is returned when selection or clear is attempted mid-job.
	ErrJobInFlight = errors.New("job in flight")

	ErrNoMediaSelected      = errors.New("no media selected")
	ErrConfigurationMissing = errors.New("models path not configured")
	ErrModelNotFound        = errors.New("model file not found")
	ErrPipelineInvocation   = errors.New("pipeline invocation failed")
	ErrCoordinatorClosed    = errors.New("coordinator closed")
)

// InvocationError reports a pipeline call that failed to run at all, as
// opposed to a pipeline that ran and rejected the work.
type InvocationError struct {
	Op  string
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both ErrPipelineInvocation and the underlying cause.
func (e *InvocationError) Unwrap() []error {
	return []error{ErrPipelineInvocation, e.Err}
}

// Pipeline is the out-of-process conversion and recognition boundary.
// Recognition results arrive later as events on the subscribed source.
type Pipeline interface {
	CheckConfiguration(ctx context.Context) (domain.ConfigCheck, error)
	CheckModelExists(ctx context.Context, model string) (bool, error)
	Convert(ctx context.Context, media domain.SelectedMedia) (domain.ConversionResult, error)
	StartRecognition(ctx context.Context, req domain.RecognitionRequest) error
	RequestStop(ctx context.Context) error
}

// SettingsSource provides the settings snapshot that gates submission.
type SettingsSource interface {
	Snapshot() domain.Settings
}

const (
	intakeBuffer = 256
	stopTimeout  = 5 * time.Second
)

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithFeed records transitions into feed.
func WithFeed(feed *Feed) Option {
	return func(c *Coordinator) { c.feed = feed }
}

// WithOnChange registers a callback for every published snapshot. It runs on
// the coordinator goroutine and must not call back into the coordinator.
func WithOnChange(fn func(domain.JobState)) Option {
	return func(c *Coordinator) { c.onChange = fn }
}

// WithClock overrides the elapsed-time tracker's period and clock.
func WithClock(period time.Duration, now func() time.Time) Option {
	return func(c *Coordinator) { c.tracker = NewTracker(period, now) }
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// Coordinator is the job state machine. A single goroutine owns the job
// state; commands, pipeline events, background results, and clock ticks are
// all serialized through it. Readers see immutable published snapshots.
type Coordinator struct {
	pipeline Pipeline
	settings SettingsSource
	subs     *events.Manager
	feed     *Feed
	log      zerolog.Logger
	onChange func(domain.JobState)
	newID    func() string

	commands chan func()
	intake   chan events.Event
	done     chan struct{}
	loopDone chan struct{}
	once     sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Pointer[domain.JobState]
	media atomic.Pointer[domain.SelectedMedia]

	// Owned by the loop goroutine.
	current   domain.JobState
	selected  *domain.SelectedMedia
	tracker   *Tracker
	cancelJob context.CancelFunc
}

// New attaches to source and starts the coordinator loop.
func New(pipeline Pipeline, settings SettingsSource, source events.Source, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		pipeline: pipeline,
		settings: settings,
		subs:     events.NewManager(source),
		log:      zerolog.Nop(),
		newID:    uuid.NewString,
		commands: make(chan func()),
		intake:   make(chan events.Event, intakeBuffer),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		current:  idleState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewTracker(DefaultTickPeriod, nil)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.subs.Attach(c.deliver); err != nil {
		c.cancel()
		return nil, fmt.Errorf("attach pipeline events: %w", err)
	}

	c.publish()
	go c.run()
	return c, nil
}

// State returns the latest published job snapshot.
func (c *Coordinator) State() domain.JobState {
	return c.state.Load().Clone()
}

// SelectedMedia returns the currently selected file, if any.
func (c *Coordinator) SelectedMedia() (domain.SelectedMedia, bool) {
	m := c.media.Load()
	if m == nil {
		return domain.SelectedMedia{}, false
	}
	return *m, true
}

// SelectFile replaces the selected media and resets the job to idle.
func (c *Coordinator) SelectFile(media domain.SelectedMedia) error {
	if err := media.Validate(); err != nil {
		return err
	}
	return c.call(func() error {
		if c.current.Phase.InFlight() {
			return ErrJobInFlight
		}
		c.selected = &media
		c.tracker.Reset()
		c.current = idleState()
		c.log.Info().Str("file", media.Name).Str("kind", media.MimeKind).Int64("size", media.SizeBytes).Msg("media selected")
		c.publish()
		return nil
	})
}

// Submit starts a job for the selected media. It returns once prechecks
// pass and conversion has been handed off, or with the reason the job was
// not admitted.
func (c *Coordinator) Submit(ctx context.Context) error {
	var ticket submission
	err := c.call(func() error {
		switch {
		case c.current.Phase.InFlight():
			return ErrJobAlreadyRunning
		case c.current.Phase.Terminal():
			return ErrJobNotCleared
		case c.selected == nil:
			return ErrNoMediaSelected
		}

		settings := c.settings.Snapshot()
		if !settings.UsesBundledModel() && strings.TrimSpace(settings.ModelsPath) == "" {
			return ErrConfigurationMissing
		}

		c.tracker.Reset()
		c.current = idleState()
		c.current.JobID = c.newID()
		c.enter(domain.JobPhaseSubmitting)
		c.publish()

		ticket = submission{jobID: c.current.JobID, media: *c.selected, settings: settings}
		return nil
	})
	if err != nil {
		return err
	}

	verdict := c.precheck(ctx, ticket.settings)

	return c.call(func() error {
		if c.current.JobID != ticket.jobID || c.current.Phase != domain.JobPhaseSubmitting {
			return ErrCoordinatorClosed
		}

		switch {
		case verdict == nil:
			c.enter(domain.JobPhaseConverting)
			c.startConversion(ticket)
		case errors.Is(verdict, ErrPipelineInvocation):
			c.finish(domain.JobPhaseFailed, verdict.Error())
		default:
			c.log.Info().Str("job_id", ticket.jobID).Err(verdict).Msg("submission rejected")
			c.current = idleState()
			c.record(FeedEntry{JobID: ticket.jobID, Type: EntryTypeStatus, Phase: domain.JobPhaseIdle, Message: verdict.Error()})
		}
		c.publish()
		return verdict
	})
}

// Stop ends the running recognition locally and asks the pipeline to stop
// without waiting for its answer. Later terminal events for the job are
// discarded.
func (c *Coordinator) Stop() error {
	err := c.call(func() error {
		if c.current.Phase != domain.JobPhaseRecognizing {
			return ErrNoRunningJob
		}
		c.finish(domain.JobPhaseStopped, "recognition stopped")
		c.publish()
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, stopTimeout)
		defer cancel()
		if err := c.pipeline.RequestStop(ctx); err != nil {
			c.log.Warn().Err(err).Msg("request stop failed")
		}
	}()
	return nil
}

// Clear wipes the job record and the selected media.
func (c *Coordinator) Clear() error {
	return c.call(func() error {
		if c.current.Phase.InFlight() {
			return ErrJobInFlight
		}
		c.tracker.Reset()
		if c.cancelJob != nil {
			c.cancelJob()
			c.cancelJob = nil
		}
		c.selected = nil
		c.current = idleState()
		c.publish()
		return nil
	})
}

// Close detaches from the event source and stops the loop. A recognition
// still running is asked to stop. Close is idempotent.
func (c *Coordinator) Close() error {
	var stopErr error
	c.once.Do(func() {
		c.subs.Close()
		recognizing := c.state.Load().Phase == domain.JobPhaseRecognizing

		close(c.done)
		<-c.loopDone
		c.cancel()

		if recognizing {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := c.pipeline.RequestStop(ctx); err != nil {
				stopErr = fmt.Errorf("stop recognition on close: %w", err)
			}
		}
	})
	return stopErr
}

type submission struct {
	jobID    string
	media    domain.SelectedMedia
	settings domain.Settings
}

func (c *Coordinator) run() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			c.tracker.Reset()
			if c.cancelJob != nil {
				c.cancelJob()
			}
			return
		case fn := <-c.commands:
			fn()
		case ev := <-c.intake:
			c.handleEvent(ev)
		case <-c.tracker.C():
			if c.tracker.Running() {
				c.current.ElapsedMs = c.tracker.Tick().Milliseconds()
				c.publish()
			}
		}
	}
}

// call runs fn on the loop goroutine and waits for its result.
func (c *Coordinator) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.commands <- func() { reply <- fn() }:
	case <-c.done:
		return ErrCoordinatorClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.loopDone:
		select {
		case err := <-reply:
			return err
		default:
			return ErrCoordinatorClosed
		}
	}
}

// post queues fn on the loop goroutine without waiting.
func (c *Coordinator) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

func (c *Coordinator) deliver(ev events.Event) {
	select {
	case c.intake <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) precheck(ctx context.Context, settings domain.Settings) error {
	check, err := c.pipeline.CheckConfiguration(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &InvocationError{Op: "check configuration", Err: err}
	}
	if !check.Valid {
		if check.Reason == "" {
			return ErrConfigurationMissing
		}
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, check.Reason)
	}

	exists, err := c.pipeline.CheckModelExists(ctx, settings.Model)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &InvocationError{Op: "check model", Err: err}
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrModelNotFound, settings.Model)
	}
	return nil
}

func (c *Coordinator) startConversion(t submission) {
	if c.cancelJob != nil {
		c.cancelJob()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelJob = cancel

	go func() {
		result, err := c.pipeline.Convert(ctx, t.media)
		c.post(func() { c.onConverted(t, result, err) })
	}()
}

func (c *Coordinator) onConverted(t submission, result domain.ConversionResult, err error) {
	if c.current.JobID != t.jobID || c.current.Phase != domain.JobPhaseConverting {
		c.log.Debug().Str("job_id", t.jobID).Msg("stale conversion result dropped")
		return
	}
	if err != nil {
		c.finish(domain.JobPhaseFailed, err.Error())
		c.publish()
		return
	}

	c.current.AudioPath = result.AudioPath
	c.current.TotalDurationSec = nil
	if result.DurationSec != nil {
		d := *result.DurationSec
		c.current.TotalDurationSec = &d
	}
	c.current.CurrentPositionSec = 0
	c.current.ProgressPercent = 0
	c.current.ElapsedMs = 0
	c.enter(domain.JobPhaseRecognizing)
	c.tracker.Start()
	c.publish()

	req := domain.RecognitionRequest{
		AudioPath:   result.AudioPath,
		DurationSec: c.current.TotalDurationSec,
		Settings:    t.settings,
	}
	ctx := c.ctx
	go func() {
		err := c.pipeline.StartRecognition(ctx, req)
		if err == nil {
			return
		}
		c.post(func() {
			if c.current.JobID != t.jobID || c.current.Phase != domain.JobPhaseRecognizing {
				return
			}
			invocation := &InvocationError{Op: "start recognition", Err: err}
			c.finish(domain.JobPhaseFailed, invocation.Error())
			c.publish()
		})
	}()
}

func (c *Coordinator) handleEvent(ev events.Event) {
	phase := c.current.Phase

	switch ev.Topic {
	case events.TopicProgress:
		if phase != domain.JobPhaseRecognizing {
			c.discard(ev)
			return
		}
		c.applyProgress(ev.Progress)

	case events.TopicOutput:
		if phase != domain.JobPhaseRecognizing && phase != domain.JobPhaseCompleted {
			c.discard(ev)
			return
		}
		if !c.appendLine(ev.Line) {
			return
		}

	case events.TopicError:
		if ev.Severity == domain.SeverityNotice {
			c.log.Info().Str("job_id", c.current.JobID).Str("notice", ev.Message).Msg("pipeline notice")
			c.record(FeedEntry{JobID: c.current.JobID, Type: EntryTypeNotice, Phase: phase, Message: ev.Message})
			return
		}
		if phase != domain.JobPhaseRecognizing {
			c.discard(ev)
			return
		}
		c.finish(domain.JobPhaseFailed, ev.Message)

	case events.TopicCompleted:
		if phase != domain.JobPhaseRecognizing {
			c.discard(ev)
			return
		}
		c.finish(domain.JobPhaseCompleted, "recognition completed")

	case events.TopicStopped:
		if phase != domain.JobPhaseRecognizing {
			c.discard(ev)
			return
		}
		c.finish(domain.JobPhaseStopped, "recognition stopped")

	default:
		c.discard(ev)
		return
	}
	c.publish()
}

func (c *Coordinator) applyProgress(p domain.ProgressEvent) {
	c.current.CurrentPositionSec = p.PositionSec
	c.current.ProgressPercent = lo.Clamp(p.Percent, 0, 100)
	if p.TotalSec > 0 {
		total := p.TotalSec
		c.current.TotalDurationSec = &total
	}
}

// appendLine adds a transcript line unless it repeats the previous one.
func (c *Coordinator) appendLine(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return false
	}
	if n := len(c.current.OutputLines); n > 0 && c.current.OutputLines[n-1] == line {
		return false
	}
	c.current.OutputLines = append(c.current.OutputLines, line)
	c.record(FeedEntry{JobID: c.current.JobID, Type: EntryTypeLog, Phase: c.current.Phase, Message: line})
	return true
}

func (c *Coordinator) enter(phase domain.JobPhase) {
	c.current.Phase = phase
	c.log.Info().Str("job_id", c.current.JobID).Str("phase", string(phase)).Msg("job transition")
	c.record(FeedEntry{JobID: c.current.JobID, Type: EntryTypeStatus, Phase: phase})
}

// finish moves the job to a terminal phase and freezes the clock.
func (c *Coordinator) finish(phase domain.JobPhase, message string) {
	c.current.ElapsedMs = c.tracker.Stop().Milliseconds()
	c.current.ResultMessage = message
	c.current.HasFinalArtifact = phase == domain.JobPhaseCompleted
	c.enter(phase)

	switch phase {
	case domain.JobPhaseCompleted:
		c.record(FeedEntry{
			JobID:     c.current.JobID,
			Type:      EntryTypeResult,
			Phase:     phase,
			AudioPath: c.current.AudioPath,
			ElapsedMs: c.current.ElapsedMs,
		})
	case domain.JobPhaseFailed:
		c.log.Warn().Str("job_id", c.current.JobID).Str("reason", message).Msg("job failed")
		c.record(FeedEntry{JobID: c.current.JobID, Type: EntryTypeError, Phase: phase, Message: message})
	}
}

func (c *Coordinator) discard(ev events.Event) {
	c.log.Debug().
		Str("job_id", c.current.JobID).
		Str("phase", string(c.current.Phase)).
		Str("topic", string(ev.Topic)).
		Msg("event discarded")
}

func (c *Coordinator) record(entry FeedEntry) {
	if c.feed != nil {
		c.feed.Record(entry)
	}
}

// publish stores an immutable snapshot for readers.
func (c *Coordinator) publish() {
	snap := c.current.Clone()
	c.state.Store(&snap)
	if c.selected != nil {
		media := *c.selected
		c.media.Store(&media)
	} else {
		c.media.Store(nil)
	}
	if c.onChange != nil {
		c.onChange(snap.Clone())
	}
}

func idleState() domain.JobState {
	return domain.JobState{Phase: domain.JobPhaseIdle, OutputLines: []string{}}
}
