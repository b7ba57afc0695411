// Package section infers the section heading active on each page of a
// scientific paper from the font metrics of its text spans.
package section

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// DefaultFontSize is the body size assumed when a page has no spans.
const DefaultFontSize = 10.0

// HeadingMargin is how far above the body size a span must be to count as a
// heading when it is not bold.
const HeadingMargin = 1.0

// Labels is the section vocabulary, English and Turkish, in the form pages
// are labelled with. Pages before the first heading get
// document.UnknownSection.
var Labels = []string{
	"Abstract", "Özet", "Giriş", "Introduction", "Methods", "Methodology", "Yöntemler",
	"Results", "Bulgular", "Sonuçlar", "Discussion", "Tartışma", "Conclusion",
}

// headingPattern matches the section vocabulary at the start of a span.
var headingPattern = regexp.MustCompile(`(?i)^(` + strings.Join(Labels, "|") + `)`)

// Span is a run of text sharing one font on a page.
type Span struct {
	Text     string
	FontSize float64
	Bold     bool
}

// Detector tracks the current section across the pages of one document.
//
// A Detector is not safe for concurrent use; each document gets its own.
type Detector struct {
	current string
}

// NewDetector returns a detector whose current section is "Unknown".
func NewDetector() *Detector {
	return &Detector{current: document.UnknownSection}
}

// Current returns the section label in effect.
func (d *Detector) Current() string {
	return d.current
}

// Observe scans the spans of the next page in reading order and returns the
// section label for that page. The label carries over from earlier pages
// until a recognised heading replaces it.
func (d *Detector) Observe(spans []Span) string {
	threshold := DominantSize(spans) + HeadingMargin

	for _, span := range spans {
		text := strings.TrimSpace(span.Text)
		if text == "" {
			continue
		}
		if !span.Bold && span.FontSize <= threshold {
			continue
		}
		if label, ok := MatchHeading(text); ok {
			d.current = label
		}
	}
	return d.current
}

// DominantSize returns the median font size of the spans, which stands for
// body text. The median is preferred over the mode so a frequently repeated
// heading size cannot be taken for the body size.
func DominantSize(spans []Span) float64 {
	if len(spans) == 0 {
		return DefaultFontSize
	}

	sizes := make([]float64, len(spans))
	for i, s := range spans {
		sizes[i] = s.FontSize
	}
	sort.Float64s(sizes)

	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}

// MatchHeading reports whether text starts with a known section name and
// returns the capitalised label.
func MatchHeading(text string) (string, bool) {
	m := headingPattern.FindString(text)
	if m == "" {
		return "", false
	}
	return capitalize(m), true
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
