package transcribe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/diagnostics"
	"whisper-desktop/internal/domain"
)

// ListDownloadedModels returns the model file names found in the user's
// models directory, sorted.
func (p *Pipeline) ListDownloadedModels(settings domain.Settings) ([]string, error) {
	dir := strings.TrimSpace(settings.ModelsPath)
	if dir == "" {
		return nil, config.ErrModelsPathUnset
	}

	entries, err := p.readDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read models directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !diagnostics.IsModelFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// SaveSubtitle copies the SRT produced for audioPath into targetDir and
// returns the written path.
func SaveSubtitle(audioPath, targetDir string) (string, error) {
	src := SubtitlePath(audioPath)
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoSubtitle, src)
	}

	targetDir = strings.TrimSpace(targetDir)
	if targetDir == "" {
		return "", fmt.Errorf("target directory is required")
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", fmt.Errorf("create target directory: %w", err)
	}

	dst := filepath.Join(targetDir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open subtitle: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create subtitle copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy subtitle: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close subtitle copy: %w", err)
	}
	return nil
}
