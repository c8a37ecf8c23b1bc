package vector

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestCollectionError(t *testing.T) {
	connErr := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: ErrCollectionNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: ErrCollectionNotFound},
		{name: "other", err: connErr, want: connErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collectionError("docqa_s1", tt.err); !errors.Is(got, tt.want) {
				t.Errorf("expected '%v', got '%v'", tt.want, got)
			}
		})
	}
}
