package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"

	"github.com/amparo-ai/amparo/internal/genai"
)

type fakeGenAI struct {
	response string
	err      error
}

func (f *fakeGenAI) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return f.GenerateWithParams(ctx, messages, genai.Params{})
}

func (f *fakeGenAI) GenerateWithParams(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, params genai.Params) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestBypassGateAllowsEverything(t *testing.T) {
	v := BypassGate{}.Check(context.Background(), "lo que sea")
	if !v.Allow {
		t.Error("expected bypass gate to allow")
	}
	if v.Emergency {
		t.Error("expected no emergency from bypass gate")
	}
	if v.Class != ClassBypass {
		t.Errorf("expected bypass class, got %s", v.Class)
	}
}

func TestOpenAIGateVerdicts(t *testing.T) {
	cases := []struct {
		response  string
		allow     bool
		emergency bool
		cls       string
	}{
		{"normal: saludo cotidiano", true, false, ClassNormal},
		{"spam: publicidad no solicitada", false, false, ClassSpam},
		{"abuso: lenguaje ofensivo", false, false, ClassAbuse},
		{"emergencia_medica: dolor de pecho", false, true, ClassEmergency},
		{"emergencia, pide ayuda urgente", false, true, ClassEmergency},
		{"autolesion: riesgo detectado", false, true, ClassSelfHarm},
		// Unrecognized first word degrades to normal.
		{"quizas normal", true, false, ClassNormal},
	}
	for _, c := range cases {
		g := NewOpenAIGate(&fakeGenAI{response: c.response})
		v := g.Check(context.Background(), "texto")
		if v.Allow != c.allow || v.Emergency != c.emergency || v.Class != c.cls {
			t.Errorf("Check with %q: expected (allow=%t emergency=%t cls=%s), got (allow=%t emergency=%t cls=%s)",
				c.response, c.allow, c.emergency, c.cls, v.Allow, v.Emergency, v.Class)
		}
		if v.Reason == "" {
			t.Errorf("Check with %q: expected reason to carry the model answer", c.response)
		}
	}
}

func TestOpenAIGateErrorBypasses(t *testing.T) {
	g := NewOpenAIGate(&fakeGenAI{err: errors.New("timeout")})
	v := g.Check(context.Background(), "texto")
	if !v.Allow {
		t.Error("expected gate error to degrade to allow")
	}
	if v.Reason != "gate-error-bypass" {
		t.Errorf("expected gate-error-bypass reason, got %s", v.Reason)
	}
	if v.Class != ClassBypass {
		t.Errorf("expected bypass class, got %s", v.Class)
	}
}
