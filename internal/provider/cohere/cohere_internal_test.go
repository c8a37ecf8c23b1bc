package cohere

import (
	"reflect"
	"testing"

	"github.com/alan-mat/docqa/internal/api"
)

func TestFilterResults(t *testing.T) {
	results := []api.RerankResult{
		{Index: 0, Score: 0.2},
		{Index: 1, Score: 0.7},
		{Index: 2, Score: 0.9},
		{Index: 3, Score: 0.5},
	}

	got := filterResults(results, 0.5)
	want := []api.RerankResult{
		{Index: 2, Score: 0.9},
		{Index: 1, Score: 0.7},
		{Index: 3, Score: 0.5},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFilterResultsEmpty(t *testing.T) {
	got := filterResults(nil, 0.5)
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}
