package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/paperqa/internal/document"
	"github.com/fyrsmithlabs/paperqa/internal/vectorindex"
)

const englishText = "CRISPR-Cas9 is a genome editing tool that allows researchers to alter DNA " +
	"sequences and modify gene function. Its many potential applications include correcting " +
	"genetic defects, treating and preventing the spread of diseases and improving crops."

const germanText = "Die Genschere ist ein molekularbiologisches Werkzeug, mit dem sich die Erbinformation " +
	"von Zellen gezielt verändern lässt. Forscher können damit einzelne Gene entfernen, einfügen " +
	"oder abschalten und so die Ursachen vieler Krankheiten besser verstehen."

type ocrFunc func(ctx context.Context, in, out string) error

func (f ocrFunc) Run(ctx context.Context, in, out string) error { return f(ctx, in, out) }

type fakeExtractor struct {
	pages []document.Page
	err   error
	block bool
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) ([]document.Page, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]document.Page, len(f.pages))
	for i, p := range f.pages {
		p.Source = filepath.Base(path)
		out[i] = p
	}
	return out, nil
}

type pageSplitter struct{}

func (pageSplitter) Split(pages []document.Page) ([]document.Chunk, error) {
	var chunks []document.Chunk
	for _, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		chunks = append(chunks, document.Chunk{Text: p.Text, Metadata: p.Metadata()})
	}
	return chunks, nil
}

// fakeIndex fails the first failures calls with err.
type fakeIndex struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
	inserted []document.Chunk
}

func (f *fakeIndex) InsertBatch(_ context.Context, chunks []document.Chunk) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return 0, f.err
	}
	f.inserted = append(f.inserted, chunks...)
	return len(chunks), nil
}

func (f *fakeIndex) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func englishPages(n int) []document.Page {
	pages := make([]document.Page, n)
	for i := range pages {
		pages[i] = document.Page{Text: englishText, Number: i + 1, Section: "Introduction"}
	}
	return pages
}

type fixture struct {
	dirs      Dirs
	extractor *fakeExtractor
	index     *fakeIndex
	ocr       OCR
	opts      Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	dirs := Dirs{
		Pending:   filepath.Join(root, "pending"),
		Processed: filepath.Join(root, "processed"),
		Failed:    filepath.Join(root, "failed"),
	}
	require.NoError(t, dirs.Ensure())
	return &fixture{
		dirs:      dirs,
		extractor: &fakeExtractor{pages: englishPages(2)},
		index:     &fakeIndex{},
		ocr:       NoopOCR{},
		opts:      Options{MaxAttempts: 3, Timeout: 10 * time.Second, RetryInterval: time.Millisecond},
	}
}

func (f *fixture) processor(t *testing.T) *Processor {
	t.Helper()
	gate, err := NewQualityGate(100, []string{"en", "tr"})
	require.NoError(t, err)
	p, err := NewProcessor(f.dirs, Components{
		OCR:       f.ocr,
		Extractor: f.extractor,
		Gate:      gate,
		Splitter:  pageSplitter{},
		Index:     f.index,
	}, f.opts, nil)
	require.NoError(t, err)
	return p
}

func (f *fixture) pending(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dirs.Pending, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))
	return path
}

func assertQuarantined(t *testing.T, f *fixture, res Result, reason string) {
	t.Helper()
	assert.Equal(t, OutcomeQuarantined, res.Outcome)
	assert.Equal(t, reason, res.Reason)
	assert.Error(t, res.Err)
	assert.NoFileExists(t, res.Path)
	assert.FileExists(t, filepath.Join(f.dirs.Failed, res.Source))
	assert.NoFileExists(t, filepath.Join(f.dirs.Processed, res.Source))
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t)
	path := f.pending(t, "cas9.pdf")

	res := f.processor(t).Process(context.Background(), path)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Empty(t, res.Reason)
	assert.False(t, res.Degraded)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 2, res.ChunksAdded)
	assert.Equal(t, 1, res.Attempts)

	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(f.dirs.Processed, "cas9.pdf"))
	require.Len(t, f.index.inserted, 2)
	assert.Equal(t, "cas9.pdf", f.index.inserted[0].Metadata.Source)
}

func TestProcess_OCROutcomes(t *testing.T) {
	tests := []struct {
		name     string
		ocrErr   error
		fallback bool
		reason   string
		degraded bool
	}{
		{name: "encrypted", ocrErr: fmt.Errorf("%w: locked", ErrEncrypted), fallback: true, reason: ReasonEncrypted},
		{name: "corrupt", ocrErr: fmt.Errorf("%w: bad xref", ErrCorruptInput), fallback: true, reason: ReasonCorrupt},
		{name: "other failure with fallback", ocrErr: errors.New("tesseract crashed"), fallback: true, degraded: true},
		{name: "other failure without fallback", ocrErr: errors.New("tesseract crashed"), reason: ReasonOCR},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.opts.FallbackToOriginal = tt.fallback
			f.ocr = ocrFunc(func(context.Context, string, string) error { return tt.ocrErr })
			path := f.pending(t, "paper.pdf")

			res := f.processor(t).Process(context.Background(), path)

			if tt.reason != "" {
				assertQuarantined(t, f, res, tt.reason)
				assert.Zero(t, f.index.Calls())
				return
			}
			require.NoError(t, res.Err)
			assert.Equal(t, OutcomeSucceeded, res.Outcome)
			assert.Equal(t, tt.degraded, res.Degraded)
			assert.FileExists(t, filepath.Join(f.dirs.Processed, "paper.pdf"))
		})
	}
}

func TestProcess_QualityGate(t *testing.T) {
	tests := []struct {
		name  string
		pages []document.Page
	}{
		{name: "too short", pages: []document.Page{{Text: "Abstract only.", Number: 1}}},
		{name: "blank pages", pages: []document.Page{{Number: 1}, {Number: 2}}},
		{name: "unaccepted language", pages: []document.Page{{Text: germanText, Number: 1}, {Text: germanText, Number: 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.extractor.pages = tt.pages
			path := f.pending(t, "paper.pdf")

			res := f.processor(t).Process(context.Background(), path)

			assertQuarantined(t, f, res, ReasonUnsupported)
			assert.ErrorIs(t, res.Err, ErrUnsupportedContent)
			assert.Zero(t, f.index.Calls())
		})
	}
}

func TestProcess_ExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = errors.New("xref table broken")
	path := f.pending(t, "broken.pdf")

	res := f.processor(t).Process(context.Background(), path)

	assertQuarantined(t, f, res, ReasonExtraction)
	assert.ErrorIs(t, res.Err, ErrExtraction)
}

func TestProcess_NoPages(t *testing.T) {
	f := newFixture(t)
	f.extractor.pages = nil
	path := f.pending(t, "empty.pdf")

	res := f.processor(t).Process(context.Background(), path)

	assertQuarantined(t, f, res, ReasonExtraction)
}

func TestProcess_RetriesStoreWrites(t *testing.T) {
	f := newFixture(t)
	f.index.failures = 2
	f.index.err = fmt.Errorf("%w: connection refused", vectorindex.ErrStoreWrite)
	path := f.pending(t, "paper.pdf")

	res := f.processor(t).Process(context.Background(), path)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, res.ChunksAdded)
}

func TestProcess_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	f.index.failures = 100
	f.index.err = fmt.Errorf("%w: connection refused", vectorindex.ErrStoreWrite)
	path := f.pending(t, "paper.pdf")

	res := f.processor(t).Process(context.Background(), path)

	assertQuarantined(t, f, res, ReasonExhausted)
	assert.ErrorIs(t, res.Err, ErrRetriesExhausted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, f.index.Calls())
}

func TestProcess_PersistFailureIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.index.failures = 1
	f.index.err = fmt.Errorf("%w: disk full", vectorindex.ErrIndexPersist)
	path := f.pending(t, "paper.pdf")

	res := f.processor(t).Process(context.Background(), path)

	assertQuarantined(t, f, res, ReasonIndex)
	assert.Equal(t, 1, res.Attempts)
}

func TestProcess_CancelledLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.extractor.block = true
	path := f.pending(t, "paper.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := f.processor(t).Process(ctx, path)

	assert.Equal(t, OutcomeRetryable, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(f.dirs.Processed, "paper.pdf"))
	assert.NoFileExists(t, filepath.Join(f.dirs.Failed, "paper.pdf"))
}

func TestProcess_Timeout(t *testing.T) {
	f := newFixture(t)
	f.extractor.block = true
	f.opts.Timeout = 20 * time.Millisecond
	path := f.pending(t, "slow.pdf")

	res := f.processor(t).Process(context.Background(), path)

	assertQuarantined(t, f, res, ReasonTimeout)
}

func TestNewProcessor_RequiresComponents(t *testing.T) {
	_, err := NewProcessor(Dirs{}, Components{}, Options{}, nil)
	assert.Error(t, err)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, ReasonInternal, reasonFor(errors.New("other")))
	assert.Equal(t, ReasonTimeout, reasonFor(context.DeadlineExceeded))
	assert.Equal(t, ReasonIndex, reasonFor(fmt.Errorf("%w: x", vectorindex.ErrStoreWrite)))
}
