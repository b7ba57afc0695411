package extraction

import (
	"math"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/paperqa/internal/document"
	"github.com/fyrsmithlabs/paperqa/internal/section"
)

// tableMarkerLimit is the count of '|' or '\t' above which a page is assumed
// to contain a table.
const tableMarkerLimit = 10

// Glyph is one positioned run of text as reported by the PDF content stream.
type Glyph struct {
	Font  string
	Size  float64
	X     float64
	Y     float64
	Width float64
	Text  string
}

// RawPage is the layout of a page before section assignment.
type RawPage struct {
	// Lines are in reading order, each holding its font spans left to right.
	Lines    [][]section.Span
	HasImage bool
}

// BuildPages assigns sections and flags to raw pages in order. Page numbers
// start at 1. The section detector runs over the whole document so a heading
// on one page labels the following pages until the next heading.
func BuildPages(source string, raw []RawPage) []document.Page {
	detector := section.NewDetector()
	pages := make([]document.Page, 0, len(raw))

	for i, rp := range raw {
		var spans []section.Span
		var sb strings.Builder
		for _, line := range rp.Lines {
			parts := make([]string, 0, len(line))
			for _, s := range line {
				spans = append(spans, s)
				if t := strings.TrimSpace(s.Text); t != "" {
					parts = append(parts, t)
				}
			}
			if len(parts) == 0 {
				continue
			}
			sb.WriteString(strings.Join(parts, " "))
			sb.WriteString("\n")
		}

		text := sb.String()
		pages = append(pages, document.Page{
			Text:     text,
			Source:   source,
			Number:   i + 1,
			Section:  detector.Observe(spans),
			HasImage: rp.HasImage,
			HasTable: HasTable(text),
		})
	}
	return pages
}

// HasTable reports the table heuristic for page text.
func HasTable(text string) bool {
	return strings.Count(text, "|") > tableMarkerLimit || strings.Count(text, "\t") > tableMarkerLimit
}

// IsBold reports whether a font name denotes a bold face.
func IsBold(font string) bool {
	return strings.Contains(strings.ToLower(font), "bold")
}

// GroupGlyphs arranges glyphs into lines (top to bottom) of spans (left to
// right). Glyphs whose baselines differ by less than half the font size share
// a line; consecutive glyphs with the same font and size share a span. A
// space is inserted where the horizontal gap between glyphs looks like a
// word break.
func GroupGlyphs(glyphs []Glyph) [][]section.Span {
	if len(glyphs) == 0 {
		return nil
	}

	type line struct {
		y      float64
		glyphs []Glyph
	}
	var lines []*line
	for _, g := range glyphs {
		var target *line
		for _, l := range lines {
			if math.Abs(l.y-g.Y) < math.Max(g.Size, 1)/2 {
				target = l
				break
			}
		}
		if target == nil {
			target = &line{y: g.Y}
			lines = append(lines, target)
		}
		target.glyphs = append(target.glyphs, g)
	}

	// PDF y grows upward.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	out := make([][]section.Span, 0, len(lines))
	for _, l := range lines {
		sort.SliceStable(l.glyphs, func(i, j int) bool { return l.glyphs[i].X < l.glyphs[j].X })

		var spans []section.Span
		var cur *Glyph
		var sb strings.Builder
		var prevEnd float64
		flush := func() {
			if cur != nil && sb.Len() > 0 {
				spans = append(spans, section.Span{Text: sb.String(), FontSize: cur.Size, Bold: IsBold(cur.Font)})
			}
			sb.Reset()
		}
		for i := range l.glyphs {
			g := l.glyphs[i]
			if cur == nil || g.Font != cur.Font || g.Size != cur.Size {
				flush()
				cur = &l.glyphs[i]
			} else if g.X-prevEnd > g.Size*0.2 && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteString(" ")
			}
			sb.WriteString(g.Text)
			prevEnd = g.X + g.Width
		}
		flush()
		if len(spans) > 0 {
			out = append(out, spans)
		}
	}
	return out
}
