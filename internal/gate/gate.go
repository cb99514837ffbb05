// Package gate provides the safety gate pre-filter.
//
// The gate classifies raw turn text before any flow routing happens. It is
// total by contract: transport or parse failures degrade to a bypass verdict
// so a broken gate can never block the pipeline.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amparo-ai/amparo/internal/genai"
	"github.com/openai/openai-go"
)

// Gate text classes.
const (
	ClassNormal    = "normal"
	ClassAbuse     = "abuso"
	ClassSpam      = "spam"
	ClassEmergency = "emergencia"
	ClassSelfHarm  = "autolesion"
	ClassBypass    = "bypass"
)

// Verdict is the gate outcome for a turn.
type Verdict struct {
	Allow     bool   `json:"allow"`
	Emergency bool   `json:"emergency"`
	Reason    string `json:"reason"`
	Class     string `json:"cls"`
}

// Gate checks raw text before classification. Implementations never fail:
// they return a bypass verdict instead.
type Gate interface {
	Check(ctx context.Context, text string) Verdict
}

// BypassGate allows everything. Used when no LLM is configured.
type BypassGate struct{}

// Check always allows the turn.
func (BypassGate) Check(ctx context.Context, text string) Verdict {
	return Verdict{Allow: true, Emergency: false, Reason: "gate-bypass", Class: ClassBypass}
}

// OpenAIGate classifies turn text with a short LLM call.
type OpenAIGate struct {
	client genai.ClientInterface
}

// NewOpenAIGate creates a gate backed by the given GenAI client.
func NewOpenAIGate(client genai.ClientInterface) *OpenAIGate {
	return &OpenAIGate{client: client}
}

// Check classifies the text into normal/abuso/spam/emergencia/autolesion.
// Any failure degrades to a bypass verdict.
func (g *OpenAIGate) Check(ctx context.Context, text string) Verdict {
	prompt := fmt.Sprintf(
		"Clasifica el texto en: normal, abuso/spam, emergencia_medica, autolesion."+
			" Devuelve solo una palabra de la clase y una breve razon.\nTexto: %s", text)

	content, err := g.client.GenerateWithParams(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage("Eres un clasificador breve. Responde en una sola linea."),
		openai.UserMessage(prompt),
	}, genai.Params{MaxTokens: 50, Temperature: 0})
	if err != nil {
		slog.Warn("Gate fallback (bypass) after error", "error", err)
		return Verdict{Allow: true, Emergency: false, Reason: "gate-error-bypass", Class: ClassBypass}
	}

	content = strings.TrimSpace(content)
	firstWord := ClassNormal
	if fields := strings.Fields(content); len(fields) > 0 {
		firstWord = strings.Trim(strings.ToLower(fields[0]), ".,;:")
	}

	cls := ClassNormal
	switch firstWord {
	case ClassAbuse, ClassSpam, ClassSelfHarm:
		cls = firstWord
	case "emergencia_medica", ClassEmergency:
		cls = ClassEmergency
	}

	verdict := Verdict{
		Allow:     cls == ClassNormal,
		Emergency: cls == ClassEmergency || cls == ClassSelfHarm,
		Reason:    content,
		Class:     cls,
	}
	slog.Debug("Gate verdict", "class", cls, "allow", verdict.Allow, "emergency", verdict.Emergency)
	return verdict
}
