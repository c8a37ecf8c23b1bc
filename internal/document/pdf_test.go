package document_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alan-mat/docqa/internal/document"
	"github.com/alan-mat/docqa/internal/document/pdftest"
)

func TestExtract(t *testing.T) {
	data := pdftest.Build("Hello from page one", "Second page text")

	content, err := document.Extract(context.Background(), data)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(content.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(content.Pages))
	}

	if !strings.Contains(content.Pages[0].Text, "Hello from page one") {
		t.Errorf("page 0 text '%s' does not contain expected text", content.Pages[0].Text)
	}
	if !strings.Contains(content.Pages[1].Text, "Second page text") {
		t.Errorf("page 1 text '%s' does not contain expected text", content.Pages[1].Text)
	}

	full := content.Text()
	if strings.Index(full, "Hello") > strings.Index(full, "Second") {
		t.Errorf("pages out of order in '%s'", full)
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: document.ErrEmptyDocument},
		{name: "garbage", data: []byte("this is not a pdf at all"), want: document.ErrInvalidPDF},
		{name: "blank pages", data: pdftest.Build("", ""), want: document.ErrNoText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := document.Extract(context.Background(), tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected error '%v', got '%v'", tt.want, err)
			}
		})
	}
}

func TestIsPDF(t *testing.T) {
	data := pdftest.Build("x")

	tests := []struct {
		filename string
		data     []byte
		want     bool
	}{
		{"report.pdf", data, true},
		{"REPORT.PDF", data, true},
		{"report.txt", data, false},
		{"report.pdf", []byte("plain text"), false},
	}

	for _, tt := range tests {
		if got := document.IsPDF(tt.filename, tt.data); got != tt.want {
			t.Errorf("IsPDF(%q) expected %v, got %v", tt.filename, tt.want, got)
		}
	}
}
