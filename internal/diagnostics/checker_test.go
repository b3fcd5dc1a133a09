package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/domain"
)

func testConfig(root string) config.AppConfig {
	return config.AppConfig{
		DataDir:         root,
		FFmpegPath:      "ffmpeg",
		FFprobePath:     "ffprobe",
		WhisperPath:     "whisper-cli",
		BundledModelDir: filepath.Join(root, "bundled"),
		WhisperVariants: map[string]string{"vulkan": "whisper-cli-vulkan"},
	}
}

func allTools(name string) (string, error) { return "/usr/local/bin/" + name, nil }

// TestCheckerRunAllPass validates happy-path diagnostics report.
func TestCheckerRunAllPass(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	modelFile := filepath.Join(modelDir, "ggml-base.bin")
	if err := os.WriteFile(modelFile, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}

	checker := NewCheckerForTests(testConfig(root), allTools, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(domain.Settings{
		ModelsPath: modelDir,
		Model:      "ggml-base.bin",
		Language:   "auto",
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if check := checker.ConfigurationCheck(domain.Settings{ModelsPath: modelDir, Model: "ggml-base.bin"}); !check.Valid {
		t.Fatalf("configuration check = %+v, want valid", check)
	}
}

// TestCheckerRunMissingToolsAndPaths validates failure reporting.
func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	root := t.TempDir()
	checker := NewCheckerForTests(
		testConfig(root),
		func(string) (string, error) { return "", errors.New("not found") },
		os.Stat,
		os.ReadDir,
		os.MkdirAll,
		os.CreateTemp,
		os.Remove,
	)

	report := checker.Run(domain.Settings{
		ModelsPath: "/path/that/does/not/exist",
		Model:      "ggml-base.bin",
	})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}

	assertStatusByID(t, report, IDFFmpeg, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDFFprobe, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDWhisper, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDModelsDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDModelFile, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDWorkDir, domain.DiagnosticStatusPass)

	check := checker.ConfigurationCheck(domain.Settings{ModelsPath: "/nowhere", Model: "ggml-base.bin"})
	if check.Valid || !strings.Contains(check.Reason, "ffmpeg") {
		t.Fatalf("configuration check = %+v, want ffmpeg failure", check)
	}
}

// TestCheckerRunModelDirectoryWithoutModelFilesFails validates model check.
func TestCheckerRunModelDirectoryWithoutModelFilesFails(t *testing.T) {
	root := t.TempDir()
	modelDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir models: %v", err)
	}
	if err := os.WriteFile(filepath.Join(modelDir, "README.txt"), []byte("no model"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	checker := NewCheckerForTests(testConfig(root), allTools, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(domain.Settings{ModelsPath: modelDir, Model: "ggml-base.bin"})

	assertStatusByID(t, report, IDModelsDir, domain.DiagnosticStatusFail)
}

// TestCheckerBundledModelNeedsNoModelsDir checks the bundled model bypass.
func TestCheckerBundledModelNeedsNoModelsDir(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)
	if err := os.MkdirAll(cfg.BundledModelDir, 0o755); err != nil {
		t.Fatalf("mkdir bundled: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.BundledModelDir, domain.BundledModel), []byte("stub"), 0o644); err != nil {
		t.Fatalf("write bundled: %v", err)
	}

	checker := NewCheckerForTests(cfg, allTools, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove)
	report := checker.Run(domain.Settings{Model: domain.BundledModel})

	assertStatusByID(t, report, IDModelsDir, domain.DiagnosticStatusFail)
	assertStatusByID(t, report, IDModelFile, domain.DiagnosticStatusPass)
	if report.HasFailures {
		t.Fatalf("optional models dir should not fail the report: %+v", report.Items)
	}
}

// TestCheckerUsesOptimizationVariant checks the whisper build follows the backend.
func TestCheckerUsesOptimizationVariant(t *testing.T) {
	var looked []string
	lookPath := func(name string) (string, error) {
		looked = append(looked, name)
		return "/bin/" + name, nil
	}
	checker := NewCheckerForTests(testConfig(t.TempDir()), lookPath, os.Stat, os.ReadDir, os.MkdirAll, os.CreateTemp, os.Remove)
	checker.Run(domain.Settings{Model: domain.BundledModel, Optimization: domain.OptimizationVulkan})

	if len(looked) != 3 || looked[2] != "whisper-cli-vulkan" {
		t.Fatalf("looked up = %v", looked)
	}
}

// TestIsModelFile covers accepted model extensions.
func TestIsModelFile(t *testing.T) {
	for name, want := range map[string]bool{
		"ggml-base.bin":  true,
		"model.GGUF":     true,
		"README.txt":     false,
		"ggml-base.bin~": false,
	} {
		if got := IsModelFile(name); got != want {
			t.Fatalf("IsModelFile(%q) = %v, want %v", name, got, want)
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}
