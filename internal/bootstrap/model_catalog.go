package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/domain"
)

const modelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Model list filters.
const (
	FilterAll         = "all"
	FilterRecommended = "recommended"
	FilterDownloaded  = "downloaded"
)

// ModelFamilies are the size families a list can be narrowed to.
var ModelFamilies = []string{"tiny", "base", "small", "medium", "large"}

var recommendedModels = []string{
	"ggml-large-v3-turbo-q5_0.bin",
	"ggml-large-v3.bin",
	domain.BundledModel,
	"ggml-base.bin",
}

var whisperModelCatalog = []domain.WhisperModelOption{
	model("ggml-tiny.bin", "Tiny", "75 MiB"),
	model("ggml-tiny-q5_1.bin", "Tiny (5-bit Quantized)", "31 MiB"),
	model("ggml-tiny-q8_0.bin", "Tiny (8-bit Quantized)", "42 MiB"),
	model("ggml-tiny.en.bin", "Tiny (English-only)", "75 MiB"),
	model("ggml-tiny.en-q5_1.bin", "Tiny (English-only, 5-bit Quantized)", "31 MiB"),
	model("ggml-tiny.en-q8_0.bin", "Tiny (English-only, 8-bit Quantized)", "42 MiB"),

	model("ggml-base.bin", "Base", "142 MiB"),
	model("ggml-base-q5_1.bin", "Base (5-bit Quantized)", "57 MiB"),
	model("ggml-base-q8_0.bin", "Base (8-bit Quantized)", "78 MiB"),
	model("ggml-base.en.bin", "Base (English-only)", "142 MiB"),
	model("ggml-base.en-q5_1.bin", "Base (English-only, 5-bit Quantized)", "57 MiB"),
	model("ggml-base.en-q8_0.bin", "Base (English-only, 8-bit Quantized)", "78 MiB"),

	model("ggml-small.bin", "Small", "466 MiB"),
	model("ggml-small-q5_1.bin", "Small (5-bit Quantized)", "181 MiB"),
	model("ggml-small-q8_0.bin", "Small (8-bit Quantized)", "252 MiB"),
	model("ggml-small.en.bin", "Small (English-only)", "466 MiB"),
	model("ggml-small.en-q5_1.bin", "Small (English-only, 5-bit Quantized)", "181 MiB"),
	model("ggml-small.en-q8_0.bin", "Small (English-only, 8-bit Quantized)", "252 MiB"),
	model("ggml-small.en-tdrz.bin", "Small (English-only, TDRZ)", "465 MiB"),

	model("ggml-medium.bin", "Medium", "1.5 GiB"),
	model("ggml-medium-q5_0.bin", "Medium (5-bit Quantized)", "514 MiB"),
	model("ggml-medium-q8_0.bin", "Medium (8-bit Quantized)", "785 MiB"),
	model("ggml-medium.en.bin", "Medium (English-only)", "1.5 GiB"),
	model("ggml-medium.en-q5_0.bin", "Medium (English-only, 5-bit Quantized)", "514 MiB"),
	model("ggml-medium.en-q8_0.bin", "Medium (English-only, 8-bit Quantized)", "785 MiB"),

	model("ggml-large-v1.bin", "Large v1", "2.9 GiB"),
	model("ggml-large-v2.bin", "Large v2", "2.9 GiB"),
	model("ggml-large-v2-q5_0.bin", "Large v2 (5-bit Quantized)", "1.1 GiB"),
	model("ggml-large-v2-q8_0.bin", "Large v2 (8-bit Quantized)", "1.5 GiB"),
	model("ggml-large-v3.bin", "Large v3", "2.9 GiB"),
	model("ggml-large-v3-q5_0.bin", "Large v3 (5-bit Quantized)", "1.1 GiB"),
	model("ggml-large-v3-turbo.bin", "Large v3 Turbo", "1.5 GiB"),
	model("ggml-large-v3-turbo-q5_0.bin", "Large v3 Turbo (5-bit Quantized)", "547 MiB"),
	model("ggml-large-v3-turbo-q8_0.bin", "Large v3 Turbo (8-bit Quantized)", "834 MiB"),
}

func model(fileName, name, size string) domain.WhisperModelOption {
	return domain.WhisperModelOption{
		ID:          fileName,
		Name:        name,
		Family:      modelFamily(fileName),
		SizeLabel:   size,
		URL:         modelBaseURL + fileName,
		Recommended: lo.Contains(recommendedModels, fileName),
		Bundled:     fileName == domain.BundledModel,
	}
}

// modelFamily derives "tiny", "base", ... from a ggml file name.
func modelFamily(fileName string) string {
	family, _ := lo.Find(ModelFamilies, func(f string) bool {
		return strings.HasPrefix(fileName, "ggml-"+f)
	})
	return family
}

// GetWhisperModels returns the model catalog narrowed by filter, with
// download and selection state filled in from the models directory and the
// current settings. An unset models directory only leaves the bundled model
// marked downloaded.
func (a *App) GetWhisperModels(filter string) ([]domain.WhisperModelOption, error) {
	settings := a.Settings.Snapshot()

	downloaded, err := a.Pipeline.ListDownloadedModels(settings)
	if err != nil && !errors.Is(err, config.ErrModelsPathUnset) {
		a.log.Warn().Err(err).Msg("list downloaded models")
	}

	return filterModels(catalogFor(settings, downloaded), filter)
}

// catalogFor copies the catalog and marks Downloaded and Selected.
func catalogFor(settings domain.Settings, downloaded []string) []domain.WhisperModelOption {
	return lo.Map(whisperModelCatalog, func(m domain.WhisperModelOption, _ int) domain.WhisperModelOption {
		m.Downloaded = m.Bundled || lo.Contains(downloaded, m.ID)
		m.Selected = m.ID == settings.Model
		return m
	})
}

func filterModels(models []domain.WhisperModelOption, filter string) ([]domain.WhisperModelOption, error) {
	switch filter = strings.ToLower(strings.TrimSpace(filter)); filter {
	case "", FilterAll:
		return models, nil
	case FilterRecommended:
		return lo.Filter(models, func(m domain.WhisperModelOption, _ int) bool { return m.Recommended }), nil
	case FilterDownloaded:
		return lo.Filter(models, func(m domain.WhisperModelOption, _ int) bool { return m.Downloaded }), nil
	}
	if !lo.Contains(ModelFamilies, filter) {
		return nil, fmt.Errorf("unknown model filter %q", filter)
	}
	return lo.Filter(models, func(m domain.WhisperModelOption, _ int) bool { return m.Family == filter }), nil
}
