package api

import "strings"

type DocumentPage struct {
	Index int
	Text  string
}

type DocumentContent struct {
	Pages []DocumentPage
}

// Text joins the text of every page in page order.
func (dc DocumentContent) Text() string {
	var sb strings.Builder
	for _, page := range dc.Pages {
		sb.WriteString(page.Text)
	}
	return sb.String()
}

type ScoredDocument struct {
	// Required
	Content string
	Score   float64

	// Optional
	Title  string
	Source string
	Index  int
}

func (d ScoredDocument) Copy() *ScoredDocument {
	return &ScoredDocument{
		Content: d.Content,
		Score:   d.Score,
		Title:   d.Title,
		Source:  d.Source,
		Index:   d.Index,
	}
}
