// Package extraction turns PDF files into section-labelled pages.
//
// Text is read glyph by glyph, grouped into lines and font spans, and fed
// through a section.Detector in page order so every page carries the heading
// that was in effect when it was reached. Image and table presence are
// recorded as coarse per-page flags.
//
// BuildPages holds the page assembly logic and is independent of any PDF
// library, which keeps it testable without fixture files:
//
//	pages := extraction.BuildPages("paper.pdf", rawPages)
//	for _, p := range pages {
//	    fmt.Println(p.Number, p.Section)
//	}
package extraction
