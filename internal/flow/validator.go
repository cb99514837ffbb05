package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/genai"
	"github.com/amparo-ai/amparo/internal/models"
)

const validatorSystemPrompt = "Eres validador de intencion para adultos mayores. " +
	"Usa contexto para detectar recordatorios implicitos. Responde SOLO JSON."

// Validator asks the LLM to validate the local flow decision against the
// conversational context. It is advisory only: any failure, timeout or
// malformed answer yields a nil decision and the local policy stands alone.
type Validator struct {
	client       genai.ClientInterface
	contextTurns int
}

// NewValidator creates a Validator that shows at most contextTurns recent
// turns to the model.
func NewValidator(client genai.ClientInterface, contextTurns int) *Validator {
	if contextTurns <= 0 {
		contextTurns = DefaultValidatorTurns
	}
	return &Validator{client: client, contextTurns: contextTurns}
}

type validatorAnswer struct {
	Flow       string `json:"flow"`
	NextPrompt string `json:"next_prompt"`
	Corrected  bool   `json:"corrected"`
}

// Suggest returns the advisory decision, or nil when the model is
// unavailable, times out, or answers outside the known flow set.
func (v *Validator) Suggest(ctx context.Context, text string, analysis classify.Result, recent []models.Message) *models.FlowDecision {
	if v == nil || v.client == nil {
		return nil
	}

	prompt := v.buildPrompt(text, analysis, recent)
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(validatorSystemPrompt),
		openai.UserMessage(prompt),
	}
	content, err := v.client.GenerateWithParams(ctx, msgs, genai.Params{MaxTokens: 100, Temperature: 0.1})
	if err != nil {
		slog.Warn("Validator unavailable, keeping local decision", "error", err)
		return nil
	}

	content = stripCodeFence(content)
	var answer validatorAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		slog.Warn("Validator returned malformed JSON, keeping local decision", "error", err)
		return nil
	}
	flow := models.Flow(strings.ToLower(strings.TrimSpace(answer.Flow)))
	if !models.IsValidFlow(flow) || flow == models.FlowBlocked {
		slog.Warn("Validator answered outside the flow set, keeping local decision", "flow", answer.Flow)
		return nil
	}

	slog.Debug("Validator answered", "flow", flow, "corrected", answer.Corrected)
	return &models.FlowDecision{
		Flow:       flow,
		NextPrompt: answer.NextPrompt,
		Reason:     fmt.Sprintf("llm_validated (corrected=%t)", answer.Corrected),
		Source:     models.SourceAdvisory,
	}
}

func (v *Validator) buildPrompt(text string, analysis classify.Result, recent []models.Message) string {
	var b strings.Builder
	if len(recent) > 0 {
		turns := recentOldestFirst(recent, v.contextTurns)
		b.WriteString("Contexto previo:\n")
		for _, m := range turns {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Mensaje actual: '%s'\n", text)
	fmt.Fprintf(&b, "ML detecto: %s (confianza %.2f)\n", analysis.Intent.Label, analysis.Intent.Score)
	fmt.Fprintf(&b, "Sentimiento: %s, Emocion: %s\n\n", analysis.Sentiment.Label, analysis.Emotion.Label)
	b.WriteString("Valida si es correcto usando el contexto. Flujos:\n" +
		"- emergencia: peligro inmediato, dolor severo, caida, dificultad respiratoria\n" +
		"- recordatorio: usuario menciona tomar/hacer algo + hora/momento especifico (incluso en mensajes separados)\n" +
		"- consulta_informacion: preguntas sobre salud, consejos, informacion general\n" +
		"- acompanamiento_social: charla, emociones, compania, saludos\n\n" +
		"IMPORTANTE: Si en mensajes previos menciono una accion (ej: tomar medicina) y ahora da hora/momento, " +
		"es un RECORDATORIO aunque no lo diga explicitamente.\n" +
		`JSON: {"flow": "...", "next_prompt": "...", "corrected": bool}`)
	return b.String()
}

// recentOldestFirst takes the newest-first history and returns up to max
// turns in chronological order.
func recentOldestFirst(recent []models.Message, max int) []models.Message {
	if len(recent) > max {
		recent = recent[:max]
	}
	out := make([]models.Message, len(recent))
	for i, m := range recent {
		out[len(recent)-1-i] = m
	}
	return out
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	var kept []string
	for _, line := range lines[1:] {
		if strings.HasPrefix(line, "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
