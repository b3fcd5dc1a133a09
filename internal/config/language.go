package config

import (
	"strings"

	"golang.org/x/text/language"
)

// NormalizeLanguage maps user input to "auto" or a base ISO 639 code that
// whisper.cpp accepts. Unparseable input falls back to "auto".
func NormalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return "auto"
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return "auto"
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "auto"
	}
	return base.String()
}
