// Package langdetect tags evidence text with an ISO 639-1 language code.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// Undetermined is returned when the sample is too short or ambiguous.
const Undetermined = "und"

const minLetters = 12

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect returns the ISO 639-1 code of text, or Undetermined.
func Detect(text string) string {
	sample := strings.TrimSpace(text)
	if countLetters(sample) < minLetters {
		return Undetermined
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return Undetermined
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return Undetermined
	}
	return code
}

func countLetters(sample string) int {
	count := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			count++
		}
	}
	return count
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})
	return detector
}
