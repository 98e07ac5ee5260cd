package memory

import (
	"context"
	"testing"

	"fintrack/internal/core"
)

func TestExport(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Export(ctx, core.PredictionRecord{ID: 1, FinalAmount: 315, Categories: core.CategorySummary{"Food": 250}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("ref = %q, want mem:1", ref)
	}

	if _, err := s.Export(ctx, core.PredictionRecord{ID: 2}); err != nil {
		t.Fatalf("Export: %v", err)
	}

	ref, err = s.Export(ctx, core.PredictionRecord{ID: 1, FinalAmount: 300})
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("re-export ref = %q, want mem:1", ref)
	}

	got := s.Exported()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].FinalAmount != 300 {
		t.Fatalf("re-export did not replace row: %+v", got[0])
	}
}

func TestExportRequiresID(t *testing.T) {
	if _, err := New().Export(context.Background(), core.PredictionRecord{}); err == nil {
		t.Fatal("expected error for record without id")
	}
}

func TestExportCopiesInput(t *testing.T) {
	s := New()
	cats := core.CategorySummary{"Food": 1}
	if _, err := s.Export(context.Background(), core.PredictionRecord{ID: 1, Categories: cats}); err != nil {
		t.Fatal(err)
	}
	cats["Food"] = 99
	if s.Exported()[0].Categories["Food"] != 1 {
		t.Fatal("exporter shares the caller's map")
	}
}
