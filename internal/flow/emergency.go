package flow

import (
	"fmt"

	"github.com/amparo-ai/amparo/internal/models"
)

var emergencyCancelPhrases = []string{
	"falsa alarma", "ya estoy bien", "no llames", "no llames a nadie", "no es necesario", "todo bien",
}

var emergencyConfirmPhrases = []string{
	"llama", "llamar", "contacta", "contactar", "ambulancia", "urgencias", "emergencia", "911", "112",
}

// RefineEmergency runs the emergency sub-flow on an already-decided emergency
// turn. It picks the escalation action from the device contact data, then
// reads the utterance for a cancel or confirm. Cancel phrases win over
// confirm phrases: "no llames a nadie" contains "llama".
func RefineEmergency(normText string, decision models.FlowDecision, contactName, contactPhone string) (models.FlowDecision, string) {
	action := models.ActionCallServices
	if contactPhone != "" {
		name := contactName
		if name == "" {
			name = "contacto"
		}
		decision.NextPrompt = fmt.Sprintf("Emergencia detectada. Llamo a tu contacto de emergencia (%s al %s)?", name, contactPhone)
		decision.Reason = "emergencia_contacto"
		action = models.ActionContactFamily
	} else {
		decision.NextPrompt = "Emergencia detectada. Llamo a servicios de emergencia?"
		decision.Reason = "emergencia_servicios"
	}

	switch {
	case containsAnyPhrase(normText, emergencyCancelPhrases):
		decision.NextPrompt = "Entendido, cancelo la alerta. Si vuelves a sentirte mal, avisa de inmediato."
		decision.Reason = "emergencia_cancel"
	case containsAnyPhrase(normText, emergencyConfirmPhrases):
		decision.NextPrompt = "Procedo a avisar a tu contacto de emergencia o servicios de urgencia. Confirmas?"
		decision.Reason = "emergencia_confirm"
	default:
		decision.NextPrompt = "Es una emergencia? Llamo a tu contacto de emergencia o a servicios de urgencia."
		decision.Reason = "emergencia_check"
	}
	return decision, action
}

// emergencyStatusByReason maps the refined reason to the event status the
// turn should leave the emergency in.
var emergencyStatusByReason = map[string]models.EmergencyStatus{
	"emergencia_cancel":    models.EmergencyStatusCancelled,
	"emergencia_confirm":   models.EmergencyStatusEscalated,
	"emergencia_check":     models.EmergencyStatusConfirming,
	"emergencia_contacto":  models.EmergencyStatusConfirming,
	"emergencia_servicios": models.EmergencyStatusConfirming,
	"gate_emergency":       models.EmergencyStatusDetected,
	"intent_emergency":     models.EmergencyStatusDetected,
}

// EmergencyTargetStatus resolves the event status for a refined reason,
// defaulting to detected.
func EmergencyTargetStatus(reason string) models.EmergencyStatus {
	if s, ok := emergencyStatusByReason[reason]; ok {
		return s
	}
	return models.EmergencyStatusDetected
}
