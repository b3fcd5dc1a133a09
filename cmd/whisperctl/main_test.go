package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisper-desktop/internal/domain"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	dataDir := filepath.Join(base, "data")
	configPath := filepath.Join(base, "app.toml")
	content := fmt.Sprintf("data_dir = %q\n\n[logging]\nlevel = \"error\"\nformat = \"json\"\ndir = \"\"\n", dataDir)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write app config: %v", err)
	}
	return &cliTestEnv{configPath: configPath, dataDir: dataDir}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// TestSettingsSetPersistsClampedValue writes a clamped thread count to disk.
func TestSettingsSetPersistsClampedValue(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"settings", "set", "threads", "99"}, env.configPath); err != nil {
		t.Fatalf("settings set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(env.dataDir, "settings.json"))
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	var saved domain.Settings
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if saved.ThreadCount != domain.MaxThreadCount {
		t.Fatalf("threads = %d, want %d", saved.ThreadCount, domain.MaxThreadCount)
	}

	out, _, err := runCLI(t, []string{"settings", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	requireContains(t, out, "threads")
	requireContains(t, out, domain.BundledModel)
}

// TestSettingsSetRejectsUnknownKey lists the error for a bad key.
func TestSettingsSetRejectsUnknownKey(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"settings", "set", "colour", "blue"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	requireContains(t, err.Error(), "unknown setting")
}

// TestModelsCommandFilters narrows the model table by filter.
func TestModelsCommandFilters(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"models", "--filter", "downloaded"}, env.configPath)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	requireContains(t, out, domain.BundledModel)
	if strings.Contains(out, "ggml-large-v3.bin") {
		t.Fatalf("downloaded filter listed a missing model:\n%s", out)
	}

	if _, _, err := runCLI(t, []string{"models", "--filter", "huge"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

// TestRunRejectsMissingFile fails before starting a job.
func TestRunRejectsMissingFile(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"run", filepath.Join(env.dataDir, "missing.mp3")}, env.configPath); err == nil {
		t.Fatal("expected error for missing media")
	}
}
