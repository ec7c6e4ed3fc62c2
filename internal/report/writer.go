package report

import (
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	pdf "github.com/stephenafamo/goldmark-pdf"
	"github.com/yuin/goldmark"
)

const (
	markdownFileName = "report.md"
	pdfFileName      = "report.pdf"
)

// Writer persists report bodies under storageDir/studies/{code} as both
// Markdown and rendered PDF.
type Writer struct {
	storageDir string
}

func NewWriter(storageDir string) *Writer {
	return &Writer{storageDir: storageDir}
}

// WriteReport stores the report body for a study and returns the paths of the
// written Markdown and PDF files. The Markdown file holds the body verbatim;
// the PDF is rendered from it. Existing report files for the study are
// overwritten.
func (w *Writer) WriteReport(ctx context.Context, studyCode, body string) (string, string, error) {
	dir := filepath.Join(w.storageDir, "studies", studyCode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating study directory: %w", err)
	}

	mdPath := filepath.Join(dir, markdownFileName)
	if err := os.WriteFile(mdPath, []byte(body), 0o644); err != nil {
		return "", "", fmt.Errorf("writing report markdown: %w", err)
	}

	pdfPath := filepath.Join(dir, pdfFileName)
	f, err := os.Create(pdfPath)
	if err != nil {
		return "", "", fmt.Errorf("creating report PDF: %w", err)
	}

	md := goldmark.New(
		goldmark.WithRenderer(
			pdf.New(
				pdf.WithContext(ctx),
				pdf.WithLinkColor(color.RGBA{R: 0x34, G: 0x98, B: 0xdb, A: 0xff}),
			),
		),
	)
	if err := md.Convert([]byte(body), f); err != nil {
		f.Close()
		return "", "", fmt.Errorf("rendering report PDF: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("writing report PDF: %w", err)
	}

	return mdPath, pdfPath, nil
}
