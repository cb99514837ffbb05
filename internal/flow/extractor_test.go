package flow

import (
	"testing"
	"time"

	"github.com/amparo-ai/amparo/internal/models"
)

func TestExtract_TitleAndDueTime(t *testing.T) {
	e := NewExtractor("UTC")
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	items := e.extractAt(Normalize("recuerdame tomar medicina manana a las 9am"), nil, base)
	if len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(items))
	}
	if items[0].Title != "tomar medicina" {
		t.Errorf("expected title %q, got %q", "tomar medicina", items[0].Title)
	}
	if items[0].DueAt == nil {
		t.Fatal("expected a due time")
	}
	want := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)
	if !items[0].DueAt.Equal(want) {
		t.Errorf("expected due %v, got %v", want, *items[0].DueAt)
	}
	if items[0].Timezone != "UTC" {
		t.Errorf("expected timezone UTC, got %q", items[0].Timezone)
	}
}

func TestExtract_PastTimeBumpsForward(t *testing.T) {
	e := NewExtractor("UTC")
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

	items := e.extractAt(Normalize("tomar pastilla a las 9am"), nil, base)
	if len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(items))
	}
	if items[0].DueAt == nil {
		t.Fatal("expected a due time")
	}
	// 9am already passed at noon, so the due time moves to the next day.
	if !items[0].DueAt.After(base) {
		t.Errorf("expected due time after base, got %v", *items[0].DueAt)
	}
}

func TestExtract_NoTemporalHintYieldsNilDue(t *testing.T) {
	e := NewExtractor("UTC")
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	items := e.extractAt(Normalize("recuerdame llamar al doctor"), nil, base)
	if len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(items))
	}
	if items[0].DueAt != nil {
		t.Errorf("expected nil due time, got %v", *items[0].DueAt)
	}
	if items[0].Title != "llamar al doctor" {
		t.Errorf("expected title %q, got %q", "llamar al doctor", items[0].Title)
	}
}

func TestExtract_SegmentsOnMultipleTimeEntities(t *testing.T) {
	e := NewExtractor("UTC")
	base := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)
	entities := []models.Entity{
		{Type: "time", Value: "9am", Score: 0.9},
		{Type: "time", Value: "5:00", Score: 0.9},
	}

	items := e.extractAt(Normalize("tomar medicina 9am y caminar 5:00"), entities, base)
	if len(items) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(items))
	}
	if items[0].Title != "tomar medicina" {
		t.Errorf("expected first title %q, got %q", "tomar medicina", items[0].Title)
	}
	if items[1].Title != "caminar" {
		t.Errorf("expected second title %q, got %q", "caminar", items[1].Title)
	}
	if items[0].DueAt == nil || items[1].DueAt == nil {
		t.Fatal("expected due times on both candidates")
	}
}

func TestExtract_BlankTitleFallsBackToSegment(t *testing.T) {
	e := NewExtractor("UTC")
	base := time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)

	items := e.extractAt(Normalize("manana 9am"), nil, base)
	if len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(items))
	}
	if items[0].Title == "" {
		t.Error("expected non-empty title fallback")
	}
}
