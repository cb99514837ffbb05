package flow

import (
	"testing"

	"github.com/amparo-ai/amparo/internal/models"
)

func reminderDecision() models.FlowDecision {
	return models.FlowDecision{
		Flow:   models.FlowReminder,
		Reason: "intent_recordatorio",
		Source: models.SourceLocal,
	}
}

func TestRefineReminder_Cancel(t *testing.T) {
	d := RefineReminder(Normalize("mejor cancela eso"), reminderDecision())
	if d.Reason != "recordatorio_cancel" {
		t.Errorf("expected recordatorio_cancel, got %s", d.Reason)
	}
}

func TestRefineReminder_BothSlots(t *testing.T) {
	d := RefineReminder(Normalize("recuerdame tomar la medicina manana a las 9am"), reminderDecision())
	if d.Reason != "recordatorio_confirm" {
		t.Errorf("expected recordatorio_confirm, got %s", d.Reason)
	}
}

func TestRefineReminder_MissingTime(t *testing.T) {
	d := RefineReminder(Normalize("recuerdame tomar la medicina azul"), reminderDecision())
	if d.Reason != "recordatorio_pedir_hora" {
		t.Errorf("expected recordatorio_pedir_hora, got %s", d.Reason)
	}
}

func TestRefineReminder_MissingContent(t *testing.T) {
	d := RefineReminder(Normalize("manana 9am"), reminderDecision())
	if d.Reason != "recordatorio_pedir_contenido" {
		t.Errorf("expected recordatorio_pedir_contenido, got %s", d.Reason)
	}
}

func TestReminderTargetStatus(t *testing.T) {
	cases := []struct {
		reason string
		text   string
		want   models.ReminderStatus
	}{
		{"recordatorio_cancel", "cancela eso", models.ReminderStatusCancelled},
		{"recordatorio_confirm", "tomar medicina manana 9am", models.ReminderStatusDraft},
		{"recordatorio_pedir_hora", "tomar medicina", models.ReminderStatusDraft},
		{"recordatorio_pedir_contenido", "manana", models.ReminderStatusDraft},
		{"intent_recordatorio", "algo", models.ReminderStatusDraft},
		// An explicit confirmation upgrades the status
		{"recordatorio_confirm", "si, confirmo", models.ReminderStatusConfirmed},
	}
	for _, c := range cases {
		if got := ReminderTargetStatus(c.reason, Normalize(c.text)); got != c.want {
			t.Errorf("ReminderTargetStatus(%q, %q): expected %s, got %s", c.reason, c.text, c.want, got)
		}
	}
}
