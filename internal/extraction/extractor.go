package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	pdflib "github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// ErrExtraction is returned when a PDF cannot be read. Callers treat it as a
// terminal failure for the document.
var ErrExtraction = errors.New("pdf extraction failed")

// Extractor reads PDF files into pages.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract reads every page of the PDF at path. The returned pages carry the
// file's base name as their source.
func (e *Extractor) Extract(ctx context.Context, path string) ([]document.Page, error) {
	raw, err := e.readRaw(ctx, path)
	if err != nil {
		return nil, err
	}

	source := filepath.Base(path)
	pages := BuildPages(source, raw)
	e.logger.Debug("pdf extracted",
		zap.String("source", source),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

func (e *Extractor) readRaw(ctx context.Context, path string) (raw []RawPage, err error) {
	// The PDF reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("%w: %s: %v", ErrExtraction, filepath.Base(path), r)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer f.Close()

	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrExtraction, filepath.Base(path))
	}

	raw = make([]RawPage, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			raw = append(raw, RawPage{})
			continue
		}

		content := page.Content()
		glyphs := make([]Glyph, 0, len(content.Text))
		for _, t := range content.Text {
			glyphs = append(glyphs, Glyph{
				Font:  t.Font,
				Size:  t.FontSize,
				X:     t.X,
				Y:     t.Y,
				Width: t.W,
				Text:  t.S,
			})
		}

		raw = append(raw, RawPage{
			Lines:    GroupGlyphs(glyphs),
			HasImage: hasImage(page),
		})
	}
	return raw, nil
}

func hasImage(page pdflib.Page) bool {
	xobjects := page.Resources().Key("XObject")
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			return true
		}
	}
	return false
}
