// Package pdf extracts per-page text from PDF documents, running OCR first
// on pages that have no text layer.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner executes an external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec and reports stderr on failure.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

type Extractor struct {
	run    Runner
	logger *zap.Logger
}

func NewExtractor(run Runner, logger *zap.Logger) *Extractor {
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{run: run, logger: logger}
}

// Extract OCRs pdfPath in place with ocrmypdf, skipping pages that already
// carry text, then returns the text of each page in document order.
// language is a tesseract code such as "spa"; see TesseractLanguage.
func (e *Extractor) Extract(ctx context.Context, pdfPath, language string) ([]string, error) {
	if _, err := e.run(ctx, "ocrmypdf", "-l", language, "--skip-text", pdfPath, pdfPath); err != nil {
		return nil, fmt.Errorf("ocr failed for %s: %w", pdfPath, err)
	}

	out, err := e.run(ctx, "pdftotext", pdfPath, "-")
	if err != nil {
		return nil, fmt.Errorf("text extraction failed for %s: %w", pdfPath, err)
	}

	pages := SplitPages(string(out))
	e.logger.Info("extracted pdf text",
		zap.String("path", pdfPath),
		zap.String("language", language),
		zap.Int("pages", len(pages)))

	return pages, nil
}

// SplitPages splits pdftotext output on form feeds. Surrounding whitespace of
// the whole document is trimmed first so the trailing form feed does not
// produce an empty last page; blank pages in the middle are kept.
func SplitPages(text string) []string {
	return strings.Split(strings.TrimSpace(text), "\f")
}

var tesseractCodes = map[string]string{
	"en": "eng",
	"es": "spa",
	"fr": "fra",
	"de": "deu",
	"it": "ita",
	"pt": "por",
}

// TesseractLanguage maps a BCP-47 tag like "es-ES" to a tesseract code.
func TesseractLanguage(tag string) (string, error) {
	primary, _, _ := strings.Cut(strings.ToLower(tag), "-")
	if code, ok := tesseractCodes[primary]; ok {
		return code, nil
	}
	return "", fmt.Errorf("no OCR language for %q", tag)
}
