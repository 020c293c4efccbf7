package infra

import (
	"context"
	"errors"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	query := "\n  --sql 3b5d1a7e-2c0f-4a51-9d3e-6f7a8b9c0d1e\nSELECT 1\nFROM users"
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker: %v", err)
	}
	if marker != "3b5d1a7e-2c0f-4a51-9d3e-6f7a8b9c0d1e" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "SELECT 1\nFROM users" {
		t.Fatalf("body = %q", body)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	for _, q := range []string{"", "SELECT 1", "--sql not-a-uuid\nSELECT 1", "-- sql 3b5d1a7e-2c0f-4a51-9d3e-6f7a8b9c0d1e\nSELECT 1"} {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("expected error for %q", q)
		}
	}
}

func TestErrorRowReturnsMarkerError(t *testing.T) {
	var dest int
	m := markedExecutor{}
	err := m.QueryRow(context.Background(), "SELECT 1").Scan(&dest)
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected marker error, got %v", err)
	}
}
