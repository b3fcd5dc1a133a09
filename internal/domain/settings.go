package domain

// Optimization selects the whisper.cpp acceleration backend.
type Optimization string

const (
	OptimizationNone   Optimization = "none"
	OptimizationVulkan Optimization = "vulkan"
	OptimizationCoreML Optimization = "coreml"
	OptimizationCUDA   Optimization = "cuda"
)

// Valid reports whether o is a known backend.
func (o Optimization) Valid() bool {
	switch o {
	case OptimizationNone, OptimizationVulkan, OptimizationCoreML, OptimizationCUDA:
		return true
	default:
		return false
	}
}

// Locale is the UI language.
type Locale string

const (
	LocaleChinese Locale = "zh-CN"
	LocaleEnglish Locale = "en"
)

const (
	// BundledModel ships with the application and needs no models directory.
	BundledModel = "ggml-tiny-q5_1.bin"

	MinThreadCount = 1
	MaxThreadCount = 8
)

// Settings contains user-selectable runtime configuration. JSON names are
// kept compatible with settings files written by earlier releases.
type Settings struct {
	ModelsPath   string       `json:"whisper_models_path"`
	Locale       Locale       `json:"app_locale"`
	Language     string       `json:"whisper_language"`
	Model        string       `json:"whisper_model"`
	EnableVAD    bool         `json:"enable_vad"`
	Optimization Optimization `json:"whisper_optimization"`
	DisableGPU   bool         `json:"disable_gpu"`
	ThreadCount  int          `json:"thread_count"`
}

// UsesBundledModel reports whether the selected model ships with the app.
func (s Settings) UsesBundledModel() bool {
	return s.Model == BundledModel
}
