package services

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

var DetectableLanguages = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Russian,
	lingua.Portuguese,
}

var (
	languageDetector     lingua.LanguageDetector
	languageDetectorOnce sync.Once
)

// DetectLanguage returns the lowercase ISO 639-1 code of the text, or an
// empty string when the language is not reliably known.
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return ""
	}

	languageDetectorOnce.Do(func() {
		languageDetector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(DetectableLanguages...).
			Build()
	})

	if language, exists := languageDetector.DetectLanguageOf(text); exists {
		return strings.ToLower(language.IsoCode639_1().String())
	}
	return ""
}
