package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/domain"
)

// Item IDs reported by Run.
const (
	IDFFmpeg    = "tool_ffmpeg"
	IDFFprobe   = "tool_ffprobe"
	IDWhisper   = "tool_whisper"
	IDModelsDir = "models_dir"
	IDModelFile = "model_file"
	IDWorkDir   = "work_dir"
)

// Checker validates external tools and required filesystem paths.
type Checker struct {
	cfg        config.AppConfig
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	readDir    func(string) ([]os.DirEntry, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(cfg config.AppConfig) *Checker {
	return &Checker{
		cfg:        cfg,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readDir:    os.ReadDir,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all checks for the given settings and returns a combined report.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	ffprobe := c.checkTool(IDFFprobe, "ffprobe", c.cfg.FFprobePath)
	ffprobe.Optional = true
	if ffprobe.Status == domain.DiagnosticStatusFail {
		ffprobe.Hint = "Without ffprobe progress is estimated from whisper.cpp output only."
	}

	items := []domain.DiagnosticItem{
		c.checkTool(IDFFmpeg, "ffmpeg", c.cfg.FFmpegPath),
		ffprobe,
		c.checkTool(IDWhisper, "whisper.cpp", c.cfg.WhisperBinary(string(settings.Optimization))),
		c.checkModelsDir(settings),
		c.checkModelFile(settings),
		c.checkWorkDir(c.cfg.TempDir()),
	}

	_, hasFailures := lo.Find(items, func(item domain.DiagnosticItem) bool {
		return item.Status == domain.DiagnosticStatusFail && !item.Optional
	})

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// ConfigurationCheck reports whether a job can be submitted, ignoring the
// selected model file which is checked separately before submission.
func (c *Checker) ConfigurationCheck(settings domain.Settings) domain.ConfigCheck {
	report := c.Run(settings)
	report.Items = lo.Filter(report.Items, func(item domain.DiagnosticItem, _ int) bool {
		return item.ID != IDModelFile
	})
	if failed, ok := report.FirstFailure(); ok {
		return domain.ConfigCheck{Valid: false, Reason: failed.Message}
	}
	return domain.ConfigCheck{Valid: true}
}

// checkTool verifies a CLI executable is resolvable.
func (c *Checker) checkTool(id, name, binary string) domain.DiagnosticItem {
	path, err := c.lookPath(binary)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      id,
			Name:    name,
			Status:  domain.DiagnosticStatusFail,
			Message: fmt.Sprintf("Tool not found: %s", binary),
			Hint:    "Install it and ensure the binary is on PATH or configured in app.toml.",
		}
	}

	return domain.DiagnosticItem{
		ID:      id,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkModelsDir validates the user's models directory. It is optional while
// the bundled model is selected.
func (c *Checker) checkModelsDir(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:       IDModelsDir,
		Name:     "Models directory",
		Optional: settings.UsesBundledModel(),
	}

	modelsPath := strings.TrimSpace(settings.ModelsPath)
	if modelsPath == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Whisper models path is not set."
		item.Hint = "Choose the directory that holds your ggml model files in settings."
		return item
	}

	info, err := c.stat(modelsPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		if errors.Is(err, os.ErrNotExist) {
			item.Message = fmt.Sprintf("Models directory does not exist: %s", modelsPath)
		} else {
			item.Message = fmt.Sprintf("Cannot access models directory: %s", modelsPath)
		}
		item.Hint = "Download a whisper.cpp model and configure the directory in settings."
		return item
	}
	if !info.IsDir() {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Models path is not a directory: %s", modelsPath)
		item.Hint = "Point the setting at the directory containing the model, not the file."
		return item
	}

	entries, err := c.readDir(modelsPath)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot read models directory: %s", modelsPath)
		item.Hint = "Check permissions for the models directory."
		return item
	}

	for _, entry := range entries {
		if !entry.IsDir() && IsModelFile(entry.Name()) {
			item.Status = domain.DiagnosticStatusPass
			item.Message = fmt.Sprintf("Models directory is valid: %s", modelsPath)
			return item
		}
	}

	item.Status = domain.DiagnosticStatusFail
	item.Message = fmt.Sprintf("No model files found in directory: %s", modelsPath)
	item.Hint = "Place a .bin or .gguf model file in this directory."
	return item
}

// checkModelFile validates that the selected model is present.
func (c *Checker) checkModelFile(settings domain.Settings) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDModelFile,
		Name: "Selected model",
	}

	path, err := c.cfg.ModelPath(settings, settings.Model)
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot resolve model %s: %v", settings.Model, err)
		item.Hint = "Set the models directory or select the bundled model."
		return item
	}

	if _, err := c.stat(path); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Model file not found: %s", path)
		item.Hint = "Download it from https://huggingface.co/ggerganov/whisper.cpp and place it in the models directory."
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Model file found: %s", path)
	return item
}

// checkWorkDir validates the scratch directory used for converted audio.
func (c *Checker) checkWorkDir(workDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   IDWorkDir,
		Name: "Working directory",
	}

	if err := c.mkdirAll(workDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create working directory: %s", workDir)
		item.Hint = "Choose a writable data_dir in app.toml or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(workDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Working directory is not writable: %s", workDir)
		item.Hint = "Choose a writable data_dir in app.toml."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", workDir)
	return item
}

// IsModelFile reports whether name looks like a whisper.cpp model.
func IsModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".bin" || ext == ".gguf"
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	cfg config.AppConfig,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	readDir func(string) ([]os.DirEntry, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		cfg:        cfg,
		lookPath:   lookPath,
		stat:       stat,
		readDir:    readDir,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

// IsNotExist reports whether error represents file-not-found.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
