package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

var (
	// ErrEncrypted is returned for password-protected input.
	ErrEncrypted = errors.New("pdf is encrypted")

	// ErrCorruptInput is returned when the OCR tool rejects the input file.
	ErrCorruptInput = errors.New("pdf is corrupt or invalid")

	// ErrOCR covers every other OCR failure.
	ErrOCR = errors.New("ocr failed")
)

// ocrmypdf exit codes.
const (
	exitBadInput  = 2
	exitEncrypted = 8
)

// OCR writes a text-layered copy of in to out.
type OCR interface {
	Run(ctx context.Context, in, out string) error
}

// OCRmyPDF runs the external ocrmypdf binary.
type OCRmyPDF struct {
	Command   string
	Languages string
	logger    *zap.Logger
}

// NewOCRmyPDF creates an OCR step. Empty command and languages fall back
// to "ocrmypdf" and "eng+tur".
func NewOCRmyPDF(command, languages string, logger *zap.Logger) *OCRmyPDF {
	if command == "" {
		command = "ocrmypdf"
	}
	if languages == "" {
		languages = "eng+tur"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OCRmyPDF{Command: command, Languages: languages, logger: logger}
}

// Args returns the command-line arguments for one run.
func (o *OCRmyPDF) Args(in, out string) []string {
	return []string{"--force-ocr", "--deskew", "-l", o.Languages, in, out}
}

// Run executes the OCR tool and maps its exit status to an error.
func (o *OCRmyPDF) Run(ctx context.Context, in, out string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, o.Command, o.Args(in, out)...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	msg := lastLine(stderr.String())
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitEncrypted:
			return fmt.Errorf("%w: %s", ErrEncrypted, msg)
		case exitBadInput:
			return fmt.Errorf("%w: %s", ErrCorruptInput, msg)
		}
	}
	o.logger.Debug("ocrmypdf failed", zap.Error(err), zap.String("stderr", msg))
	return fmt.Errorf("%w: %v: %s", ErrOCR, err, msg)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// NoopOCR copies the input unchanged.
type NoopOCR struct{}

// Run copies in to out.
func (NoopOCR) Run(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyFile(in, out)
}

// NewOCR returns the OCR step selected by cfg.
func NewOCR(cfg config.OCRConfig, logger *zap.Logger) OCR {
	if !cfg.Enabled {
		return NoopOCR{}
	}
	return NewOCRmyPDF(cfg.Command, cfg.Languages, logger)
}
