package domain

// WhisperModelOption describes one ggml model preset shown in the catalog.
type WhisperModelOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Family      string `json:"family"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	URL         string `json:"url"`
	Recommended bool   `json:"recommended,omitempty"`
	Bundled     bool   `json:"bundled,omitempty"`
	Downloaded  bool   `json:"downloaded"`
	Selected    bool   `json:"selected"`
}
