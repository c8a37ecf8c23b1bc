// Package document extracts text content from uploaded PDF files.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/alan-mat/docqa/internal/api"
)

const pdfMagic = "%PDF-"

var (
	ErrEmptyDocument = errors.New("document is empty")
	ErrInvalidPDF    = errors.New("invalid pdf document")
	ErrNoText        = errors.New("no text extracted from pdf")
)

// IsPDF reports whether the file looks like a PDF, judging by its
// extension and its magic header.
func IsPDF(filename string, data []byte) bool {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return false
	}
	return bytes.HasPrefix(data, []byte(pdfMagic))
}

// Extract reads the embedded text of every page in the document, in page order.
// Pages that cannot be read contribute an empty string.
func Extract(ctx context.Context, data []byte) (content *api.DocumentContent, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	// the pdf reader panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	numPages := r.NumPage()
	content = &api.DocumentContent{
		Pages: make([]api.DocumentPage, 0, numPages),
	}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content.Pages = append(content.Pages, api.DocumentPage{
			Index: i - 1,
			Text:  pageText(r, i),
		})
	}

	if strings.TrimSpace(content.Text()) == "" {
		return nil, ErrNoText
	}

	return content, nil
}

func pageText(r *pdf.Reader, num int) string {
	p := r.Page(num)
	if p.V.IsNull() {
		slog.Warn("pdf page has no content, skipping...", "page", num)
		return ""
	}

	text, err := p.GetPlainText(nil)
	if err != nil {
		slog.Warn("failed to extract page text, skipping...", "page", num, "err", err)
		return ""
	}
	return text
}
