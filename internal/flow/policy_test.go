package flow

import (
	"testing"

	"github.com/amparo-ai/amparo/internal/gate"
	"github.com/amparo-ai/amparo/internal/models"
)

func allowVerdict() gate.Verdict {
	return gate.Verdict{Allow: true, Reason: "gate-bypass", Class: gate.ClassBypass}
}

func TestDecideLocal_GateEmergencyWins(t *testing.T) {
	cfg := DefaultConfig()
	v := gate.Verdict{Allow: true, Emergency: true, Reason: "emergencia", Class: gate.ClassEmergency}
	intent := models.Classification{Label: "saludo", Score: 0.99}

	d := DecideLocal(cfg, Normalize("hola"), intent, v)
	if d.Flow != models.FlowEmergency {
		t.Errorf("expected emergency flow, got %s", d.Flow)
	}
	if d.Reason != "gate_emergency" {
		t.Errorf("expected gate_emergency reason, got %s", d.Reason)
	}
}

func TestDecideLocal_EmergencyIntent(t *testing.T) {
	cfg := DefaultConfig()
	for _, label := range []string{"emergencia_medica", "alerta_medica"} {
		d := DecideLocal(cfg, Normalize("me caigo"), models.Classification{Label: label, Score: 0.8}, allowVerdict())
		if d.Flow != models.FlowEmergency {
			t.Errorf("label %s: expected emergency flow, got %s", label, d.Flow)
		}
		if d.Reason != "intent_emergency" {
			t.Errorf("label %s: expected intent_emergency, got %s", label, d.Reason)
		}
	}
}

func TestDecideLocal_ReminderByScore(t *testing.T) {
	cfg := DefaultConfig()
	d := DecideLocal(cfg, Normalize("avisame de la pastilla"), models.Classification{Label: "recordatorio", Score: 0.65}, allowVerdict())
	if d.Flow != models.FlowReminder || d.Reason != "intent_recordatorio" {
		t.Errorf("expected reminder/intent_recordatorio, got %s/%s", d.Flow, d.Reason)
	}
}

func TestDecideLocal_ReminderBelowThresholdFallsThrough(t *testing.T) {
	cfg := DefaultConfig()
	// Label says reminder but the score is below the trust threshold and the
	// text has no trigger word, so the decision falls to the final fallback.
	d := DecideLocal(cfg, Normalize("avisame de la pastilla"), models.Classification{Label: "recordatorio", Score: 0.5}, allowVerdict())
	if d.Flow != models.FlowCompanionship || d.Reason != "fallback_acompanamiento" {
		t.Errorf("expected companionship/fallback_acompanamiento, got %s/%s", d.Flow, d.Reason)
	}
}

func TestDecideLocal_KeywordOverridesWeakIntent(t *testing.T) {
	cfg := DefaultConfig()
	d := DecideLocal(cfg, Normalize("ponme una alarma para la cita"), models.Classification{Label: "conversacion_social", Score: 0.4}, allowVerdict())
	if d.Flow != models.FlowReminder || d.Reason != "keyword_recordatorio" {
		t.Errorf("expected reminder/keyword_recordatorio, got %s/%s", d.Flow, d.Reason)
	}
}

func TestDecideLocal_KeywordDoesNotOverrideStrongIntent(t *testing.T) {
	cfg := DefaultConfig()
	d := DecideLocal(cfg, Normalize("que es una alarma de humo"), models.Classification{Label: "consulta_informacion", Score: 0.92}, allowVerdict())
	if d.Flow != models.FlowInformation || d.Reason != "intent_consulta" {
		t.Errorf("expected information/intent_consulta, got %s/%s", d.Flow, d.Reason)
	}
}

func TestDecideLocal_InformationLabels(t *testing.T) {
	cfg := DefaultConfig()
	for _, label := range []string{"consulta_informacion", "informacion_personal", "monitoreo_salud", "configuracion_asistente", "comando_dispositivo"} {
		d := DecideLocal(cfg, Normalize("dime algo"), models.Classification{Label: label, Score: 0.9}, allowVerdict())
		if d.Flow != models.FlowInformation {
			t.Errorf("label %s: expected information flow, got %s", label, d.Flow)
		}
	}
}

func TestDecideLocal_CompanionshipLabels(t *testing.T) {
	cfg := DefaultConfig()
	for _, label := range []string{"conversacion_social", "saludo", "despedida", "motivacion_personal", "reporte_emocional", "agradecimiento", "no_entendido"} {
		d := DecideLocal(cfg, Normalize("hola"), models.Classification{Label: label, Score: 0.9}, allowVerdict())
		if d.Flow != models.FlowCompanionship {
			t.Errorf("label %s: expected companionship flow, got %s", label, d.Flow)
		}
	}
}

func TestDecideLocal_UnknownLabelFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	d := DecideLocal(cfg, Normalize("zzz"), models.Classification{Label: "etiqueta_rara", Score: 0.9}, allowVerdict())
	if d.Flow != models.FlowCompanionship || d.Reason != "fallback_acompanamiento" {
		t.Errorf("expected companionship fallback, got %s/%s", d.Flow, d.Reason)
	}
	if d.Source != models.SourceLocal {
		t.Errorf("expected local source, got %s", d.Source)
	}
}
