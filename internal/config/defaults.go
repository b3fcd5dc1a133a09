package config

import (
	"math"
	"strings"

	"github.com/samber/lo"

	"whisper-desktop/internal/domain"
)

// DefaultSettings returns baseline configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ModelsPath:   "",
		Locale:       domain.LocaleChinese,
		Language:     "auto",
		Model:        domain.BundledModel,
		EnableVAD:    false,
		Optimization: domain.OptimizationNone,
		DisableGPU:   false,
		ThreadCount:  4,
	}
}

// ClampThreads rounds and clamps a requested worker count to [1,8].
func ClampThreads(n float64) int {
	if math.IsNaN(n) {
		return DefaultSettings().ThreadCount
	}
	return int(lo.Clamp(math.Round(n), float64(domain.MinThreadCount), float64(domain.MaxThreadCount)))
}

// Normalize trims user inputs and repairs fields that fell out of range.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.ModelsPath = strings.TrimSpace(settings.ModelsPath)
	settings.Model = strings.TrimSpace(settings.Model)
	if settings.Model == "" {
		settings.Model = defaults.Model
	}
	settings.Language = NormalizeLanguage(settings.Language)
	if settings.Locale != domain.LocaleChinese && settings.Locale != domain.LocaleEnglish {
		settings.Locale = defaults.Locale
	}
	if !settings.Optimization.Valid() {
		settings.Optimization = defaults.Optimization
	}
	settings.ThreadCount = ClampThreads(float64(settings.ThreadCount))
	return settings
}
