// Package models defines the core data structures for Amparo.
//
// It includes classification results, flow decisions, persisted reminders and
// emergency events, and the device/message records shared across modules.
package models

import (
	"errors"
	"time"
)

// Flow identifies the conversational mode selected for a turn. The Spanish
// labels are the wire contract inherited from the original assistant and are
// consumed as-is by the Android frontend.
type Flow string

const (
	// FlowEmergency handles medical emergencies and escalation.
	FlowEmergency Flow = "emergencia"
	// FlowReminder collects and persists reminders.
	FlowReminder Flow = "recordatorio"
	// FlowInformation answers informational queries.
	FlowInformation Flow = "consulta_informacion"
	// FlowCompanionship is the social conversation fallback.
	FlowCompanionship Flow = "acompanamiento_social"
	// FlowBlocked marks turns rejected by the safety gate.
	FlowBlocked Flow = "bloqueado"
)

// IsValidFlow checks if the given flow is one the engine can route to.
func IsValidFlow(f Flow) bool {
	switch f {
	case FlowEmergency, FlowReminder, FlowInformation, FlowCompanionship, FlowBlocked:
		return true
	default:
		return false
	}
}

// DecisionSource tags where a FlowDecision came from.
type DecisionSource string

const (
	// SourceLocal marks a decision produced by the local rule policy alone.
	SourceLocal DecisionSource = "local"
	// SourceAdvisory marks a raw suggestion from the LLM validator.
	SourceAdvisory DecisionSource = "llm"
	// SourceConsensus marks agreement between local and advisory decisions.
	SourceConsensus DecisionSource = "hybrid+validated"
	// SourceSafety marks an emergency escalation forced by either side.
	SourceSafety DecisionSource = "hybrid+safety"
	// SourcePreserved marks a reminder kept alive by either side.
	SourcePreserved DecisionSource = "hybrid+preservation"
	// SourceCorrected marks the advisory overriding the local decision.
	SourceCorrected DecisionSource = "hybrid+corrected"
	// SourceGate marks decisions forced by the safety gate pre-filter.
	SourceGate DecisionSource = "gate"
)

// LabeledScore is a single (label, confidence) pair.
type LabeledScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classification is the output of one classifier head: the top label plus up
// to three ranked alternatives, sorted descending by confidence.
type Classification struct {
	Label string         `json:"label"`
	Score float64        `json:"score"`
	TopK  []LabeledScore `json:"top_k,omitempty"`
}

// Entity is a named entity recognized in the turn text.
type Entity struct {
	Type  string  `json:"type"`
	Value string  `json:"value"`
	Score float64 `json:"score"`
}

// FlowDecision is the outcome of flow selection for a single turn. Decisions
// are values: sub-flow refinement returns a new FlowDecision rather than
// mutating the merged one, so the reason/source trail stays traceable.
type FlowDecision struct {
	Flow       Flow           `json:"flow"`
	NextPrompt string         `json:"next_prompt,omitempty"`
	Reason     string         `json:"reason"`
	Source     DecisionSource `json:"source"`
}

// ReminderCandidate is one reminder parsed out of a turn by the extractor.
// It lives only for the duration of the request.
type ReminderCandidate struct {
	Title    string
	DueAt    *time.Time
	Timezone string
}

// ReminderStatus enumerates the reminder lifecycle.
type ReminderStatus string

const (
	ReminderStatusDraft     ReminderStatus = "draft"
	ReminderStatusConfirmed ReminderStatus = "confirmed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
	ReminderStatusDone      ReminderStatus = "done"
)

// IsValidReminderStatus checks if the given reminder status is supported.
func IsValidReminderStatus(s ReminderStatus) bool {
	switch s {
	case ReminderStatusDraft, ReminderStatusConfirmed, ReminderStatusCancelled, ReminderStatusDone:
		return true
	default:
		return false
	}
}

// Reminder is a persisted reminder record.
type Reminder struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	SessionID string         `json:"session_id,omitempty"`
	Title     string         `json:"title"`
	DueAt     *time.Time     `json:"due_at,omitempty"`
	Timezone  string         `json:"timezone,omitempty"`
	Status    ReminderStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EmergencyStatus enumerates the emergency event lifecycle. Events move
// strictly forward except into the terminal cancelled/resolved states.
type EmergencyStatus string

const (
	EmergencyStatusDetected   EmergencyStatus = "detected"
	EmergencyStatusConfirming EmergencyStatus = "confirming"
	EmergencyStatusEscalated  EmergencyStatus = "escalated"
	EmergencyStatusCancelled  EmergencyStatus = "cancelled"
	EmergencyStatusResolved   EmergencyStatus = "resolved"
)

// IsValidEmergencyStatus checks if the given emergency status is supported.
func IsValidEmergencyStatus(s EmergencyStatus) bool {
	switch s {
	case EmergencyStatusDetected, EmergencyStatusConfirming, EmergencyStatusEscalated,
		EmergencyStatusCancelled, EmergencyStatusResolved:
		return true
	default:
		return false
	}
}

// IsTerminalEmergencyStatus reports whether the status closes the event.
func IsTerminalEmergencyStatus(s EmergencyStatus) bool {
	return s == EmergencyStatusCancelled || s == EmergencyStatusResolved
}

// EmergencyEvent is a persisted emergency record. At most one open event may
// exist per (device, session); later emergency turns update it in place.
type EmergencyEvent struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Status      EmergencyStatus `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Action      string          `json:"action,omitempty"`
	ContactName string          `json:"contact_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// IsOpen reports whether the event is still active.
func (e *EmergencyEvent) IsOpen() bool {
	return !IsTerminalEmergencyStatus(e.Status)
}

// Emergency escalation actions.
const (
	// ActionContactFamily escalates to the registered emergency contact.
	ActionContactFamily = "contact_family"
	// ActionCallServices escalates to emergency services.
	ActionCallServices = "call_services"
)

// Device is the persisted device profile, read once per turn.
type Device struct {
	DeviceID     string    `json:"device_id"`
	UserID       string    `json:"user_id,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	MedicalNotes string    `json:"medical_notes,omitempty"`
	Conditions   []string  `json:"conditions,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message roles for dialog turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageAnalysis bundles the per-turn classifier outputs stored alongside a
// message for analytics.
type MessageAnalysis struct {
	Intent    Classification `json:"intent"`
	Sentiment Classification `json:"sentiment"`
	Emotion   Classification `json:"emotion"`
}

// FlowMetadata records how a turn was routed.
type FlowMetadata struct {
	Assigned Flow           `json:"assigned"`
	Reason   string         `json:"reason,omitempty"`
	Source   DecisionSource `json:"source,omitempty"`
	Gate     string         `json:"gate,omitempty"`
	Decoder  string         `json:"decoder,omitempty"`
}

// Message is one persisted dialog turn. The engine only ever reads history;
// it never rewrites past turns.
type Message struct {
	ID        string           `json:"id"`
	DeviceID  string           `json:"device_id"`
	SessionID string           `json:"session_id,omitempty"`
	Role      string           `json:"role"`
	Text      string           `json:"text"`
	Analysis  *MessageAnalysis `json:"ml_analysis,omitempty"`
	FlowMeta  *FlowMetadata    `json:"flow_metadata,omitempty"`
	Entities  []Entity         `json:"entities,omitempty"`
	Emergency bool             `json:"emergency"`
	CreatedAt time.Time        `json:"created_at"`
}

// Error variables for request validation and record handling.
var (
	ErrEmptyText             = errors.New("text cannot be empty")
	ErrEmptyDeviceID         = errors.New("device_id is required and cannot be empty")
	ErrEmptySessionID        = errors.New("session_id is required and cannot be empty")
	ErrInvalidReminderStatus = errors.New("invalid reminder status")
	ErrInvalidEmergencyState = errors.New("invalid emergency status")
	ErrRecordNotFound        = errors.New("record not found")
)
