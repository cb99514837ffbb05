package models

import (
	"errors"
	"testing"
)

func TestIsValidFlow(t *testing.T) {
	valid := []Flow{FlowEmergency, FlowReminder, FlowInformation, FlowCompanionship, FlowBlocked}
	for _, f := range valid {
		if !IsValidFlow(f) {
			t.Errorf("expected %s to be valid", f)
		}
	}
	if IsValidFlow("flujo_inventado") {
		t.Error("expected unknown flow to be invalid")
	}
	if IsValidFlow("") {
		t.Error("expected empty flow to be invalid")
	}
}

func TestIsValidReminderStatus(t *testing.T) {
	valid := []ReminderStatus{ReminderStatusDraft, ReminderStatusConfirmed, ReminderStatusCancelled, ReminderStatusDone}
	for _, s := range valid {
		if !IsValidReminderStatus(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if IsValidReminderStatus("pendiente") {
		t.Error("expected unknown status to be invalid")
	}
}

func TestEmergencyStatusLifecycle(t *testing.T) {
	open := []EmergencyStatus{EmergencyStatusDetected, EmergencyStatusConfirming, EmergencyStatusEscalated}
	for _, s := range open {
		if !IsValidEmergencyStatus(s) {
			t.Errorf("expected %s to be valid", s)
		}
		if IsTerminalEmergencyStatus(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
		e := EmergencyEvent{Status: s}
		if !e.IsOpen() {
			t.Errorf("expected event with status %s to be open", s)
		}
	}

	terminal := []EmergencyStatus{EmergencyStatusCancelled, EmergencyStatusResolved}
	for _, s := range terminal {
		if !IsTerminalEmergencyStatus(s) {
			t.Errorf("expected %s to be terminal", s)
		}
		e := EmergencyEvent{Status: s}
		if e.IsOpen() {
			t.Errorf("expected event with status %s to be closed", s)
		}
	}

	if IsValidEmergencyStatus("activo") {
		t.Error("expected unknown status to be invalid")
	}
}

func TestChatRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  ChatRequest
		want error
	}{
		{"valid", ChatRequest{Text: "hola", DeviceID: "d", SessionID: "s"}, nil},
		{"empty text", ChatRequest{DeviceID: "d", SessionID: "s"}, ErrEmptyText},
		{"empty device", ChatRequest{Text: "hola", SessionID: "s"}, ErrEmptyDeviceID},
		{"empty session", ChatRequest{Text: "hola", DeviceID: "d"}, ErrEmptySessionID},
	}
	for _, c := range cases {
		if err := c.req.Validate(); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
}
