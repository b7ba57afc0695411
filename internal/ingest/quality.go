package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// ErrUnsupportedContent is returned for documents that are too short, in an
// unaccepted language, or that produce no chunks.
var ErrUnsupportedContent = errors.New("unsupported content")

// samplePages is how many leading pages feed language detection.
const samplePages = 2

// rivals are detected alongside the accepted languages so that text in a
// common unaccepted language is not forced onto an accepted one.
var rivals = []lingua.Language{
	lingua.English,
	lingua.Turkish,
	lingua.German,
	lingua.French,
	lingua.Spanish,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Dutch,
	lingua.Russian,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Arabic,
}

// QualityGate rejects documents before they are chunked and embedded.
type QualityGate struct {
	minChars int
	accepted map[lingua.Language]bool
	detector lingua.LanguageDetector
}

// NewQualityGate accepts documents whose sample has at least minChars
// characters and whose detected language has an ISO 639-1 code in languages.
func NewQualityGate(minChars int, languages []string) (*QualityGate, error) {
	if len(languages) == 0 {
		return nil, fmt.Errorf("at least one accepted language required")
	}

	accepted := make(map[lingua.Language]bool, len(languages))
	for _, code := range languages {
		iso := lingua.GetIsoCode639_1FromValue(strings.ToLower(strings.TrimSpace(code)))
		lang := lingua.GetLanguageFromIsoCode639_1(iso)
		if lang == lingua.Unknown {
			return nil, fmt.Errorf("unknown language code %q", code)
		}
		accepted[lang] = true
	}

	candidates := make([]lingua.Language, 0, len(rivals)+len(accepted))
	candidates = append(candidates, rivals...)
	for lang := range accepted {
		if !containsLanguage(rivals, lang) {
			candidates = append(candidates, lang)
		}
	}

	return &QualityGate{
		minChars: minChars,
		accepted: accepted,
		detector: lingua.NewLanguageDetectorBuilder().FromLanguages(candidates...).Build(),
	}, nil
}

// Sample joins the text of the first two pages with a space.
func Sample(pages []document.Page) string {
	n := len(pages)
	if n > samplePages {
		n = samplePages
	}
	texts := make([]string, 0, n)
	for _, p := range pages[:n] {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, " ")
}

// Check returns the detected language code or an error wrapping
// ErrUnsupportedContent.
func (g *QualityGate) Check(pages []document.Page) (string, error) {
	sample := Sample(pages)
	if n := utf8.RuneCountInString(sample); n < g.minChars {
		return "", fmt.Errorf("%w: sample has %d characters, need %d", ErrUnsupportedContent, n, g.minChars)
	}

	lang, ok := g.detector.DetectLanguageOf(sample)
	if !ok {
		return "", fmt.Errorf("%w: language could not be detected", ErrUnsupportedContent)
	}
	code := strings.ToLower(lang.IsoCode639_1().String())
	if !g.accepted[lang] {
		return code, fmt.Errorf("%w: language %s is not accepted", ErrUnsupportedContent, code)
	}
	return code, nil
}

func containsLanguage(langs []lingua.Language, l lingua.Language) bool {
	for _, x := range langs {
		if x == l {
			return true
		}
	}
	return false
}
