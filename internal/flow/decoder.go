package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/genai"
	"github.com/amparo-ai/amparo/internal/models"
)

// Decoder source tags reported in the chat response.
const (
	DecoderOpenAI    = "openai"
	DecoderMock      = "mock"
	DecoderGate      = "gate"
	DecoderEmergency = "emergency_protocol"
)

const decoderSystemPrompt = "Asistente empatico para adultos mayores. Se util, conversacional y claro." +
	" Prioriza seguridad si hay riesgo, y responde a la peticion de forma util." +
	" IMPORTANTE: Usa la informacion de mensajes previos para responder preguntas sobre el usuario" +
	" (ej: si el usuario dijo 'Me llamo Juan' antes, responde 'Te llamas Juan' cuando lo pregunte)." +
	" CRITICO: Si conoces sus condiciones medicas o notas de salud, usa esa informacion para dar respuestas mas seguras" +
	" (ej: si es diabetico, se cauteloso con recomendaciones dieteticas)."

const decoderTruncateAt = 200

// ReplyGenerator produces the assistant reply. With an LLM client it asks
// the model, grounded on the dialog history and the device health profile;
// without one, or on any error, it falls back to a templated reply.
type ReplyGenerator struct {
	client       genai.ClientInterface
	contextTurns int
}

// NewReplyGenerator creates a ReplyGenerator. A nil client means templated
// replies only.
func NewReplyGenerator(client genai.ClientInterface, contextTurns int) *ReplyGenerator {
	if contextTurns <= 0 {
		contextTurns = DefaultDecoderTurns
	}
	return &ReplyGenerator{client: client, contextTurns: contextTurns}
}

// Generate returns the reply text and the decoder source tag.
func (g *ReplyGenerator) Generate(ctx context.Context, text string, analysis classify.Result, recent []models.Message, device *models.Device) (string, string) {
	if g.client != nil {
		reply, err := g.generateLLM(ctx, text, analysis, recent, device)
		if err == nil {
			return reply, DecoderOpenAI
		}
		slog.Warn("Reply generation via OpenAI failed, using mock", "error", err)
	}
	return g.mockReply(analysis), DecoderMock
}

func (g *ReplyGenerator) generateLLM(ctx context.Context, text string, analysis classify.Result, recent []models.Message, device *models.Device) (string, error) {
	var b strings.Builder
	b.WriteString("Eres un asistente virtual (estilo ChatGPT) para adultos mayores. Responde en espanol, 2-5 frases max," +
		" empatico, claro y util. Prioriza responder la peticion concreta del usuario." +
		" Reglas: 1) No inventes datos; 2) Si hay riesgo/emergencia, sugiere contactar a alguien o servicios y haz 1-2 preguntas de verificacion;" +
		" 3) Evita lenguaje tecnico y disculpas vacias; 4) La emocion solo ajusta el tono, no la accion;" +
		" 5) Social/juego: conversa y sugiere 2-3 ideas sencillas; 6) Consulta/ayuda: responde directo y un paso siguiente;" +
		" 7) Si intencion baja o 'no_entendido', usa el texto del usuario para cumplir lo que pide explicitamente." +
		" 8) IMPORTANTE: Usa el contexto de mensajes previos para recordar informacion personal que el usuario menciono." +
		" 9) CRITICO: Si el usuario tiene condiciones medicas o notas especiales, ajusta tus respuestas considerando la seguridad y riesgos.")
	fmt.Fprintf(&b, "\nContexto:")
	fmt.Fprintf(&b, "\n- Intencion: %s (score %g)", analysis.Intent.Label, analysis.Intent.Score)
	fmt.Fprintf(&b, "\n- Sentimiento: %s", strings.ToUpper(analysis.Sentiment.Label))
	fmt.Fprintf(&b, "\n- Emocion: %s", analysis.Emotion.Label)
	fmt.Fprintf(&b, "\n- Entidades: %s", entityList(analysis.Entities))
	fmt.Fprintf(&b, "\n- Texto del usuario: %s", text)

	if history := g.historyBlock(recent); history != "" {
		b.WriteString(history)
	}
	if health := healthBlock(device); health != "" {
		b.WriteString(health)
	}

	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(decoderSystemPrompt),
		openai.UserMessage(b.String()),
	}
	reply, err := g.client.GenerateWithMessages(ctx, msgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

func (g *ReplyGenerator) historyBlock(recent []models.Message) string {
	if len(recent) == 0 {
		return ""
	}
	var lines []string
	for _, m := range recentOldestFirst(recent, g.contextTurns) {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		text := m.Text
		// Truncate on a rune boundary so stripped-but-multibyte text
		// like "ñ" is never cut in half.
		if r := []rune(text); len(r) > decoderTruncateAt {
			text = string(r[:decoderTruncateAt])
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), text))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\nHistorial de conversacion:\n" + strings.Join(lines, "\n")
}

func healthBlock(device *models.Device) string {
	if device == nil {
		return ""
	}
	var lines []string
	if device.MedicalNotes != "" {
		lines = append(lines, "NOTAS MEDICAS: "+device.MedicalNotes)
	}
	if len(device.Conditions) > 0 {
		lines = append(lines, "CONDICIONES: "+strings.Join(device.Conditions, ", "))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\nPerfil de Salud del Usuario:\n" + strings.Join(lines, "\n")
}

func (g *ReplyGenerator) mockReply(analysis classify.Result) string {
	intent := analysis.Intent.Label
	if intent == "" {
		intent = "acompanamiento"
	}

	var tone string
	switch strings.ToUpper(analysis.Sentiment.Label) {
	case "NEG":
		tone = "Estoy contigo; te apoyo"
	case "NEU", "":
		tone = "Estoy aqui para ayudarte"
	default:
		tone = "Estoy listo para ayudarte"
	}

	entText := ""
	if len(analysis.Entities) > 0 {
		entText = "Veo que mencionas " + entityList(analysis.Entities) + ". "
	}
	return fmt.Sprintf("%s. Puedo ayudarte con %s. %sDime que necesitas y lo hacemos juntos.", tone, intent, entText)
}

func entityList(entities []models.Entity) string {
	if len(entities) == 0 {
		return "ninguna"
	}
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, e.Type+":"+e.Value)
	}
	return strings.Join(parts, ", ")
}
