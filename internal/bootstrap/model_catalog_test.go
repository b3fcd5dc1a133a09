package bootstrap

import (
	"testing"

	"whisper-desktop/internal/config"
	"whisper-desktop/internal/domain"
)

// TestModelFamily maps file names to their size family.
func TestModelFamily(t *testing.T) {
	cases := map[string]string{
		"ggml-tiny.en-q5_1.bin":        "tiny",
		"ggml-base.bin":                "base",
		"ggml-small.en-tdrz.bin":       "small",
		"ggml-medium-q8_0.bin":         "medium",
		"ggml-large-v3-turbo-q5_0.bin": "large",
		"custom.bin":                   "",
	}
	for name, want := range cases {
		if got := modelFamily(name); got != want {
			t.Fatalf("family(%s) = %q, want %q", name, got, want)
		}
	}
}

// TestCatalogMarksBundledAndDownloaded keeps the bundled model always available.
func TestCatalogMarksBundledAndDownloaded(t *testing.T) {
	settings := config.DefaultSettings()
	settings.Model = "ggml-base.bin"

	models := catalogFor(settings, []string{"ggml-base.bin", "not-in-catalog.bin"})
	byID := map[string]domain.WhisperModelOption{}
	for _, m := range models {
		byID[m.ID] = m
	}

	bundled := byID[domain.BundledModel]
	if !bundled.Bundled || !bundled.Downloaded {
		t.Fatalf("bundled model = %+v, want bundled and downloaded", bundled)
	}
	base := byID["ggml-base.bin"]
	if !base.Downloaded || !base.Selected {
		t.Fatalf("base model = %+v, want downloaded and selected", base)
	}
	if byID["ggml-small.bin"].Downloaded {
		t.Fatal("expected small to remain not downloaded")
	}
	if whisperModelCatalog[0].Downloaded {
		t.Fatal("catalog template must not be mutated")
	}
}

// TestFilterModels narrows the catalog by the supported filters.
func TestFilterModels(t *testing.T) {
	models := catalogFor(config.DefaultSettings(), nil)

	recommended, err := filterModels(models, FilterRecommended)
	if err != nil {
		t.Fatalf("filter recommended: %v", err)
	}
	if len(recommended) != len(recommendedModels) {
		t.Fatalf("recommended = %d, want %d", len(recommended), len(recommendedModels))
	}

	downloaded, err := filterModels(models, FilterDownloaded)
	if err != nil {
		t.Fatalf("filter downloaded: %v", err)
	}
	if len(downloaded) != 1 || downloaded[0].ID != domain.BundledModel {
		t.Fatalf("downloaded = %+v, want only the bundled model", downloaded)
	}

	large, err := filterModels(models, "Large")
	if err != nil {
		t.Fatalf("filter large: %v", err)
	}
	for _, m := range large {
		if m.Family != "large" {
			t.Fatalf("model %s has family %s in large filter", m.ID, m.Family)
		}
	}

	all, err := filterModels(models, "")
	if err != nil || len(all) != len(whisperModelCatalog) {
		t.Fatalf("all = %d (%v), want %d", len(all), err, len(whisperModelCatalog))
	}

	if _, err := filterModels(models, "huge"); err == nil {
		t.Fatal("expected error for unknown filter")
	}
}

// TestGetWhisperModelsToleratesUnsetModelsPath still lists the bundled model.
func TestGetWhisperModelsToleratesUnsetModelsPath(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.listErr = config.ErrModelsPathUnset
	app, _, _ := newTestApp(t, pipeline, &fakeStore{settings: config.DefaultSettings()})

	models, err := app.GetWhisperModels(FilterDownloaded)
	if err != nil {
		t.Fatalf("get models: %v", err)
	}
	if len(models) != 1 || !models[0].Selected {
		t.Fatalf("models = %+v, want the selected bundled model", models)
	}
}
