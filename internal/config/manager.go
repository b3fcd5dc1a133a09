package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog"

	"whisper-desktop/internal/domain"
)

// DefaultSaveDelay is the debounce window for continuous controls.
const DefaultSaveDelay = 300 * time.Millisecond

// SaveMode selects how a settings edit is persisted.
type SaveMode int

const (
	// SaveDebounced coalesces bursts behind one shared timer.
	SaveDebounced SaveMode = iota
	// SaveImmediate persists right away, for explicit user actions.
	SaveImmediate
	// SaveManual leaves persistence to an explicit Save call.
	SaveManual
)

// String returns the mode name used in logs.
func (m SaveMode) String() string {
	switch m {
	case SaveImmediate:
		return "immediate"
	case SaveManual:
		return "manual"
	default:
		return "debounced"
	}
}

// Manager owns the in-memory settings record. Setters apply synchronously;
// persistence happens in the background according to the SaveMode.
type Manager struct {
	store     Store
	log       zerolog.Logger
	delay     time.Duration
	debounced func(f func())
	onChange  func(domain.Settings)

	mu       sync.Mutex
	settings domain.Settings
	dirty    bool
	closed   bool
	lastErr  error

	saveMu   sync.Mutex
	inflight sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSaveDelay overrides the debounce window.
func WithSaveDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithOnChange registers a callback invoked after every in-memory edit.
func WithOnChange(fn func(domain.Settings)) Option {
	return func(m *Manager) { m.onChange = fn }
}

// NewManager creates a manager holding default settings until Load is called.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		log:      zerolog.Nop(),
		delay:    DefaultSaveDelay,
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.debounced = debounce.New(m.delay)
	return m
}

// Load reads the persisted record once. On failure defaults stay in effect
// and the error is also kept for LastError.
func (m *Manager) Load() error {
	settings, err := m.store.Load()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.lastErr = err
		m.log.Warn().Err(err).Msg("load settings, using defaults")
		return fmt.Errorf("load settings: %w", err)
	}
	m.settings = Normalize(settings)
	m.dirty = false
	m.lastErr = nil
	return nil
}

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() domain.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// LastError returns the most recent load or save failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Update applies fn to a copy of the settings, normalizes the result and
// schedules persistence.
func (m *Manager) Update(fn func(*domain.Settings), mode SaveMode) domain.Settings {
	m.mu.Lock()
	next := m.settings
	fn(&next)
	next = Normalize(next)
	m.settings = next
	m.dirty = true
	closed := m.closed
	m.mu.Unlock()

	if !closed {
		switch mode {
		case SaveImmediate:
			m.inflight.Add(1)
			go func() {
				defer m.inflight.Done()
				_ = m.persist(false)
			}()
		case SaveDebounced:
			m.debounced(func() { _ = m.persist(false) })
		}
	}

	if m.onChange != nil {
		m.onChange(next)
	}
	return next
}

// SetLocale changes the UI language.
func (m *Manager) SetLocale(locale domain.Locale, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.Locale = locale }, mode)
}

// SetLanguage changes the recognition language ("auto" or an ISO code).
func (m *Manager) SetLanguage(lang string, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.Language = lang }, mode)
}

// SetModel selects the ggml model file name.
func (m *Manager) SetModel(name string, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.Model = name }, mode)
}

// SetModelsPath sets the directory holding downloaded models.
func (m *Manager) SetModelsPath(path string, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.ModelsPath = path }, mode)
}

// SetVAD toggles voice activity detection.
func (m *Manager) SetVAD(enabled bool, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.EnableVAD = enabled }, mode)
}

// SetDisableGPU toggles CPU-only recognition.
func (m *Manager) SetDisableGPU(disabled bool, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.DisableGPU = disabled }, mode)
}

// SetThreadCount stores n rounded and clamped to [1,8].
func (m *Manager) SetThreadCount(n float64, mode SaveMode) domain.Settings {
	clamped := ClampThreads(n)
	return m.Update(func(s *domain.Settings) { s.ThreadCount = clamped }, mode)
}

// SetOptimization selects the acceleration backend.
func (m *Manager) SetOptimization(opt domain.Optimization, mode SaveMode) domain.Settings {
	return m.Update(func(s *domain.Settings) { s.Optimization = opt }, mode)
}

// Save persists the current snapshot synchronously.
func (m *Manager) Save() error {
	return m.persist(true)
}

// Flush writes any pending edit and waits for background writes to finish.
func (m *Manager) Flush() error {
	err := m.persist(false)
	m.inflight.Wait()
	return err
}

// Close flushes pending edits and stops scheduling further writes.
func (m *Manager) Close() error {
	err := m.Flush()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return err
}

// persist writes the snapshot taken at call time. Writes are serialized, so
// the last writer always holds the newest snapshot.
func (m *Manager) persist(force bool) error {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if !force && !m.dirty {
		m.mu.Unlock()
		return nil
	}
	snapshot := m.settings
	m.dirty = false
	m.mu.Unlock()

	if err := m.store.Save(snapshot); err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.dirty = true
		m.mu.Unlock()
		m.log.Warn().Err(err).Msg("persist settings")
		return fmt.Errorf("save settings: %w", err)
	}

	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()
	m.log.Debug().
		Str("model", snapshot.Model).
		Str("language", snapshot.Language).
		Int("threads", snapshot.ThreadCount).
		Msg("settings persisted")
	return nil
}
