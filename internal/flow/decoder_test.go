package flow

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/models"
)

func TestHistoryBlockTruncatesOnRuneBoundary(t *testing.T) {
	g := NewReplyGenerator(nil, 5)
	long := strings.Repeat("a", decoderTruncateAt-1) + "ñx"

	block := g.historyBlock([]models.Message{{Role: models.RoleUser, Text: long}})
	if !utf8.ValidString(block) {
		t.Fatal("expected valid UTF-8 after truncation")
	}
	if !strings.HasSuffix(block, "ñ") {
		t.Errorf("expected the multibyte rune kept whole, block ends with %q", block[len(block)-4:])
	}
	if strings.Contains(block, "x") {
		t.Error("expected text beyond the limit to be dropped")
	}
}

func TestMockReplyTone(t *testing.T) {
	g := NewReplyGenerator(nil, 5)

	reply, source := g.Generate(context.Background(), "me siento triste", classify.Result{
		Intent:    models.Classification{Label: "reporte_emocional", Score: 0.8},
		Sentiment: models.Classification{Label: "NEG", Score: 0.9},
	}, nil, nil)
	if source != DecoderMock {
		t.Errorf("expected mock decoder, got %s", source)
	}
	if !strings.HasPrefix(reply, "Estoy contigo") {
		t.Errorf("expected negative-sentiment tone, got %q", reply)
	}
	if !strings.Contains(reply, "reporte_emocional") {
		t.Errorf("expected intent in mock reply, got %q", reply)
	}
}

func TestMockReplyMentionsEntities(t *testing.T) {
	g := NewReplyGenerator(nil, 5)

	reply, _ := g.Generate(context.Background(), "tomar medicina a las 9", classify.Result{
		Intent:    models.Classification{Label: "recordatorio", Score: 0.9},
		Sentiment: models.Classification{Label: "NEU", Score: 0.8},
		Entities:  []models.Entity{{Type: "time", Value: "9", Score: 0.9}},
	}, nil, nil)
	if !strings.Contains(reply, "time:9") {
		t.Errorf("expected entities in mock reply, got %q", reply)
	}
}
