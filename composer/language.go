package composer

import (
	"errors"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

var ErrTooFewLanguages = errors.New("language detection needs at least two known languages")

// LanguageDetector guesses the ISO 639-1 code of a text
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

// LinguaDetector detects languages among a configured set using lingua
type LinguaDetector struct {
	detector lingua.LanguageDetector
	codes    map[lingua.Language]string
}

var _ LanguageDetector = (*LinguaDetector)(nil)

// NewLinguaDetector builds a detector for the given ISO 639-1 codes. Unknown
// codes are skipped.
func NewLinguaDetector(languages []string) (*LinguaDetector, error) {
	supported := getSupportedLanguages()

	targets := []lingua.Language{}
	for _, code := range languages {
		if lang, ok := isoToLingua(strings.ToLower(code), supported); ok {
			targets = append(targets, lang)
		}
	}
	if len(targets) < 2 {
		return nil, ErrTooFewLanguages
	}

	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(targets...).
		WithMinimumRelativeDistance(0.25).
		Build()

	return &LinguaDetector{detector: detector, codes: supported}, nil
}

func (d *LinguaDetector) Detect(text string) (string, bool) {
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	code := linguaToISO(lang, d.codes)
	return code, code != ""
}

func linguaToISO(lang lingua.Language, languages map[lingua.Language]string) string {
	if code, ok := languages[lang]; ok {
		return code
	}
	return ""
}

func isoToLingua(code string, languages map[lingua.Language]string) (lingua.Language, bool) {
	for lang, isoCode := range languages {
		if isoCode == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

// getSupportedLanguages maps every lingua language to its lower case ISO 639-1 code
func getSupportedLanguages() map[lingua.Language]string {
	languages := make(map[lingua.Language]string)
	for _, lang := range lingua.AllLanguages() {
		isoCode := strings.ToLower(lang.IsoCode639_1().String())
		languages[lang] = isoCode
	}
	return languages
}
