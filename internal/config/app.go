package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"whisper-desktop/internal/domain"
)

// ErrModelsPathUnset is returned when a non-bundled model is resolved
// without a configured models directory.
var ErrModelsPathUnset = errors.New("whisper models path is not set")

const (
	defaultSaveDelayMs = 300
	defaultLogLevel    = "info"
	defaultLogFormat   = "auto"
)

// AppConfig holds application options that are not user settings: tool
// locations, data directories and logging. It is read from app.toml.
type AppConfig struct {
	DataDir         string     `toml:"data_dir"`
	FFmpegPath      string     `toml:"ffmpeg_path"`
	FFprobePath     string     `toml:"ffprobe_path"`
	WhisperPath     string     `toml:"whisper_path"`
	BundledModelDir string     `toml:"bundled_model_dir"`
	SaveDelayMs     int        `toml:"save_delay_ms"`
	Logging         AppLogging `toml:"logging"`

	// WhisperVariants maps an optimization backend (vulkan, coreml, cuda) to
	// a whisper.cpp build compiled for it.
	WhisperVariants map[string]string `toml:"whisper_variants"`
}

// AppLogging contains configuration for log output.
type AppLogging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"`
}

// DefaultAppConfig returns options rooted at ~/.whisper-desktop.
func DefaultAppConfig() AppConfig {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	dataDir := filepath.Join(homeDir, ".whisper-desktop")

	return AppConfig{
		DataDir:         dataDir,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		WhisperPath:     "whisper-cli",
		BundledModelDir: filepath.Join(dataDir, "bundled"),
		SaveDelayMs:     defaultSaveDelayMs,
		Logging: AppLogging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Dir:    filepath.Join(dataDir, "logs"),
		},
	}
}

// DefaultAppConfigPath is where app.toml is looked up when no path is given.
func DefaultAppConfigPath() string {
	return filepath.Join(DefaultAppConfig().DataDir, "app.toml")
}

// LoadAppConfig reads app.toml on top of defaults. A missing file is not an
// error.
func LoadAppConfig(path string) (AppConfig, error) {
	cfg := DefaultAppConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return AppConfig{}, fmt.Errorf("read app config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse app config %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// SettingsPath is where the user settings JSON lives.
func (c AppConfig) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// TempDir is the scratch directory for converted audio.
func (c AppConfig) TempDir() string {
	return filepath.Join(c.DataDir, "temp")
}

// WhisperBinary picks the whisper.cpp build for an optimization backend,
// falling back to the default build.
func (c AppConfig) WhisperBinary(opt string) string {
	if path := strings.TrimSpace(c.WhisperVariants[opt]); path != "" {
		return path
	}
	return c.WhisperPath
}

// ModelPath resolves a model file name. The bundled model lives in the
// application bundle; every other model lives in the user's models directory.
func (c AppConfig) ModelPath(settings domain.Settings, model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		model = settings.Model
	}
	if model == domain.BundledModel {
		return filepath.Join(c.BundledModelDir, model), nil
	}
	dir := strings.TrimSpace(settings.ModelsPath)
	if dir == "" {
		return "", ErrModelsPathUnset
	}
	return filepath.Join(dir, filepath.Base(model)), nil
}

// SaveDelay is the debounce window for settings persistence.
func (c AppConfig) SaveDelay() time.Duration {
	return time.Duration(c.SaveDelayMs) * time.Millisecond
}

func (c *AppConfig) normalize() error {
	defaults := DefaultAppConfig()

	var err error
	if c.DataDir, err = expandPath(c.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.DataDir == "" {
		c.DataDir = defaults.DataDir
	}
	if c.BundledModelDir, err = expandPath(c.BundledModelDir); err != nil {
		return fmt.Errorf("bundled_model_dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(c.Logging.Dir); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	for opt, path := range c.WhisperVariants {
		if c.WhisperVariants[opt], err = expandPath(path); err != nil {
			return fmt.Errorf("whisper_variants.%s: %w", opt, err)
		}
	}

	c.FFmpegPath = orDefault(c.FFmpegPath, defaults.FFmpegPath)
	c.FFprobePath = orDefault(c.FFprobePath, defaults.FFprobePath)
	c.WhisperPath = orDefault(c.WhisperPath, defaults.WhisperPath)
	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, defaults.Logging.Level))
	c.Logging.Format = strings.ToLower(orDefault(c.Logging.Format, defaults.Logging.Format))
	if c.SaveDelayMs <= 0 {
		c.SaveDelayMs = defaultSaveDelayMs
	}
	return nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
