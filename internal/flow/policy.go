package flow

import (
	"log/slog"

	"github.com/amparo-ai/amparo/internal/gate"
	"github.com/amparo-ai/amparo/internal/models"
)

// Classifier label sets mapped to each flow. The intent classifier emits
// fine-grained Spanish labels; the flows group them.
var (
	emergencyLabels = map[string]bool{
		"emergencia_medica": true,
		"alerta_medica":     true,
	}
	informationLabels = map[string]bool{
		"consulta_informacion":    true,
		"informacion_personal":    true,
		"monitoreo_salud":         true,
		"configuracion_asistente": true,
		"comando_dispositivo":     true,
	}
	companionshipLabels = map[string]bool{
		"conversacion_social": true,
		"saludo":              true,
		"despedida":           true,
		"motivacion_personal": true,
		"reporte_emocional":   true,
		"agradecimiento":      true,
		"no_entendido":        true,
	}
)

// DecideLocal routes the utterance into a flow using only the classifier
// output, the gate verdict and keyword rules. It never fails and never blocks.
// Rules apply in order; the first match wins.
func DecideLocal(cfg Config, normText string, intent models.Classification, verdict gate.Verdict) models.FlowDecision {
	label := intent.Label
	if label == "" {
		label = "no_entendido"
	}
	score := intent.Score

	if verdict.Emergency || emergencyLabels[label] {
		reason := "intent_emergency"
		if verdict.Emergency {
			reason = "gate_emergency"
		}
		return models.FlowDecision{
			Flow:       models.FlowEmergency,
			NextPrompt: "Emergencia detectada. Llamo a tu contacto de emergencia o a servicios de urgencia?",
			Reason:     reason,
			Source:     models.SourceLocal,
		}
	}

	if label == "recordatorio" && score >= cfg.TrustThreshold {
		return models.FlowDecision{
			Flow:       models.FlowReminder,
			NextPrompt: "Entendido. Que debo recordar y a que hora?",
			Reason:     "intent_recordatorio",
			Source:     models.SourceLocal,
		}
	}

	if ReminderKeywordMatch(normText) && score < cfg.KeywordOverrideBelow {
		return models.FlowDecision{
			Flow:       models.FlowReminder,
			NextPrompt: "Te ayudo a guardar un recordatorio. Que debo recordar y cuando?",
			Reason:     "keyword_recordatorio",
			Source:     models.SourceLocal,
		}
	}

	if informationLabels[label] {
		return models.FlowDecision{
			Flow:       models.FlowInformation,
			NextPrompt: "Claro, dime que informacion necesitas y te apoyo.",
			Reason:     "intent_consulta",
			Source:     models.SourceLocal,
		}
	}

	if companionshipLabels[label] {
		return models.FlowDecision{
			Flow:       models.FlowCompanionship,
			NextPrompt: "Estoy aqui contigo. Quieres contarme mas o necesitas apoyo en algo?",
			Reason:     "intent_acompanamiento",
			Source:     models.SourceLocal,
		}
	}

	slog.Debug("DecideLocal falling back to companionship", "label", label, "score", score)
	return models.FlowDecision{
		Flow:       models.FlowCompanionship,
		NextPrompt: "Estoy aqui para ayudarte. Como puedo apoyarte?",
		Reason:     "fallback_acompanamiento",
		Source:     models.SourceLocal,
	}
}
