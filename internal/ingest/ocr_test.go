package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/paperqa/internal/config"
	"github.com/fyrsmithlabs/paperqa/internal/document"
)

// fakeTool writes a shell script that prints to stderr and exits with code.
func fakeTool(t *testing.T, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ocrmypdf")
	script := fmt.Sprintf("#!/bin/sh\necho \"ocr diagnostics\" >&2\nexit %d\n", code)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestOCRmyPDF_Args(t *testing.T) {
	o := NewOCRmyPDF("", "", nil)
	assert.Equal(t, "ocrmypdf", o.Command)
	assert.Equal(t,
		[]string{"--force-ocr", "--deskew", "-l", "eng+tur", "in.pdf", "out.pdf"},
		o.Args("in.pdf", "out.pdf"),
	)
}

func TestOCRmyPDF_ExitCodes(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{code: 0},
		{code: 2, want: ErrCorruptInput},
		{code: 8, want: ErrEncrypted},
		{code: 15, want: ErrOCR},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("exit %d", tt.code), func(t *testing.T) {
			o := NewOCRmyPDF(fakeTool(t, tt.code), "eng", nil)
			err := o.Run(context.Background(), "in.pdf", "out.pdf")
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "ocr diagnostics")
		})
	}
}

func TestOCRmyPDF_MissingBinary(t *testing.T) {
	o := NewOCRmyPDF(filepath.Join(t.TempDir(), "nope"), "eng", nil)
	assert.ErrorIs(t, o.Run(context.Background(), "in.pdf", "out.pdf"), ErrOCR)
}

func TestNoopOCR_Copies(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "out.pdf")
	require.NoError(t, os.WriteFile(in, []byte("%PDF"), 0o644))

	require.NoError(t, NoopOCR{}.Run(context.Background(), in, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
}

func TestNewOCR(t *testing.T) {
	assert.IsType(t, NoopOCR{}, NewOCR(config.OCRConfig{Enabled: false}, nil))
	assert.IsType(t, &OCRmyPDF{}, NewOCR(config.OCRConfig{Enabled: true}, nil))
}

func TestSample_FirstTwoPages(t *testing.T) {
	pages := []document.Page{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	assert.Equal(t, "one two", Sample(pages))
	assert.Equal(t, "one", Sample(pages[:1]))
	assert.Equal(t, "", Sample(nil))
}

func TestNewQualityGate_Validation(t *testing.T) {
	_, err := NewQualityGate(100, nil)
	assert.Error(t, err)

	_, err = NewQualityGate(100, []string{"en", "xx"})
	assert.Error(t, err)
}

func TestQualityGate_DetectsLanguage(t *testing.T) {
	gate, err := NewQualityGate(100, []string{"EN"})
	require.NoError(t, err)

	lang, err := gate.Check([]document.Page{{Text: englishText}})
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	lang, err = gate.Check([]document.Page{{Text: germanText}})
	assert.ErrorIs(t, err, ErrUnsupportedContent)
	assert.Equal(t, "de", lang)
}
