package flow

import "github.com/amparo-ai/amparo/internal/models"

// RefineReminder runs the reminder sub-flow on an already-decided reminder
// turn: cancel first, then slot filling until both content and time are known.
func RefineReminder(normText string, decision models.FlowDecision) models.FlowDecision {
	if IsCancelText(normText) {
		decision.NextPrompt = "Entendido, cancelo el recordatorio. Te ayudo con algo mas?"
		decision.Reason = "recordatorio_cancel"
		return decision
	}

	slots := ExtractReminderSlots(normText)
	switch {
	case slots.HasContent && slots.HasTime:
		decision.NextPrompt = "Listo. Confirmo el recordatorio asi? Si no, dime cancelar."
		decision.Reason = "recordatorio_confirm"
	case slots.HasContent:
		decision.NextPrompt = "Cuando debo recordartelo? (ej. hoy 5pm, manana 9:00)"
		decision.Reason = "recordatorio_pedir_hora"
	default:
		decision.NextPrompt = "Que debo recordar y cuando? (ej. tomar medicina a las 9am)"
		decision.Reason = "recordatorio_pedir_contenido"
	}
	return decision
}

var reminderStatusByReason = map[string]models.ReminderStatus{
	"recordatorio_cancel":          models.ReminderStatusCancelled,
	"recordatorio_confirm":         models.ReminderStatusDraft,
	"recordatorio_pedir_hora":      models.ReminderStatusDraft,
	"recordatorio_pedir_contenido": models.ReminderStatusDraft,
	"intent_recordatorio":          models.ReminderStatusDraft,
	"keyword_recordatorio":         models.ReminderStatusDraft,
}

// ReminderTargetStatus resolves the reminder status for a refined reason.
// An explicit confirmation in the utterance upgrades any non-cancel outcome
// to confirmed.
func ReminderTargetStatus(reason, normText string) models.ReminderStatus {
	status, ok := reminderStatusByReason[reason]
	if !ok {
		status = models.ReminderStatusDraft
	}
	if IsConfirmText(normText) {
		status = models.ReminderStatusConfirmed
	}
	return status
}
