package section

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func body(text string) Span {
	return Span{Text: text, FontSize: 10}
}

func TestDetectorSectionContinuity(t *testing.T) {
	pages := [][]Span{
		{{Text: "Introduction", FontSize: 14}, body("CRISPR systems are"), body("widely used.")},
		{body("More body text"), body("without headings"), body("at all.")},
		{{Text: "Methods", FontSize: 10, Bold: true}, body("We cultured"), body("cells.")},
	}

	d := NewDetector()
	var got []string
	for _, spans := range pages {
		got = append(got, d.Observe(spans))
	}

	assert.Equal(t, []string{"Introduction", "Introduction", "Methods"}, got)
}

func TestDetectorStartsUnknown(t *testing.T) {
	d := NewDetector()
	assert.Equal(t, "Unknown", d.Current())
	assert.Equal(t, "Unknown", d.Observe([]Span{body("Title of the paper"), body("Authors")}))
}

func TestDetectorIgnoresBodySizedHeadingWords(t *testing.T) {
	d := NewDetector()
	label := d.Observe([]Span{body("Results of prior work suggest"), body("that"), body("this holds.")})
	assert.Equal(t, "Unknown", label)
}

func TestDetectorLastHeadingOnPageWins(t *testing.T) {
	d := NewDetector()
	label := d.Observe([]Span{
		{Text: "Abstract", FontSize: 10, Bold: true},
		body("We present"),
		{Text: "1. Introduction", FontSize: 14},
		{Text: "Introduction", FontSize: 14},
		body("text"),
	})
	assert.Equal(t, "Introduction", label)
}

func TestDetectorSkipsEmptySpans(t *testing.T) {
	d := NewDetector()
	label := d.Observe([]Span{{Text: "   ", FontSize: 20, Bold: true}, body("x")})
	assert.Equal(t, "Unknown", label)
}

func TestDominantSize(t *testing.T) {
	tests := []struct {
		name  string
		spans []Span
		want  float64
	}{
		{"empty page falls back", nil, DefaultFontSize},
		{"odd count median", []Span{{FontSize: 9}, {FontSize: 18}, {FontSize: 10}}, 10},
		{"even count averages middles", []Span{{FontSize: 10}, {FontSize: 12}, {FontSize: 9}, {FontSize: 14}}, 11},
		// The heading size is the most frequent value, the median still picks body text.
		{"frequent heading size", []Span{{FontSize: 16}, {FontSize: 16}, {FontSize: 10}, {FontSize: 10}, {FontSize: 10}, {FontSize: 16}, {FontSize: 10}}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DominantSize(tt.spans), 1e-9)
		})
	}
}

func TestMatchHeading(t *testing.T) {
	tests := []struct {
		text  string
		want  string
		match bool
	}{
		{"INTRODUCTION", "Introduction", true},
		{"Methodology and data", "Methodology", true},
		{"methods", "Methods", true},
		{"Özet", "Özet", true},
		{"Yöntemler", "Yöntemler", true},
		{"Tartışma", "Tartışma", true},
		{"Conclusions", "Conclusion", true},
		{"1. Introduction", "", false},
		{"Acknowledgements", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := MatchHeading(tt.text)
			assert.Equal(t, tt.match, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
