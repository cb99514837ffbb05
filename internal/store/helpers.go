package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amparo-ai/amparo/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfNoTime returns nil for a nil time pointer, otherwise the time value.
func nilIfNoTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// marshalOrNull JSON-encodes v for a nullable column; nil input stays NULL.
func marshalOrNull(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return string(data), nil
}

// scanReminder scans a reminder row in column order
// (id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at).
func scanReminder(row rowScanner) (models.Reminder, error) {
	var r models.Reminder
	var sessionID, title, timezone sql.NullString
	var dueAt sql.NullTime
	var status string
	err := row.Scan(&r.ID, &r.DeviceID, &sessionID, &title, &dueAt, &timezone, &status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.SessionID = sessionID.String
	r.Title = title.String
	r.Timezone = timezone.String
	r.Status = models.ReminderStatus(status)
	if dueAt.Valid {
		t := dueAt.Time
		r.DueAt = &t
	}
	return r, nil
}

// scanEmergency scans an emergency event row in column order
// (id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at).
func scanEmergency(row rowScanner) (models.EmergencyEvent, error) {
	var e models.EmergencyEvent
	var sessionID, reason, action, contactName sql.NullString
	var resolvedAt sql.NullTime
	var status string
	err := row.Scan(&e.ID, &e.DeviceID, &sessionID, &status, &reason, &action, &contactName, &e.CreatedAt, &resolvedAt)
	if err != nil {
		return e, err
	}
	e.SessionID = sessionID.String
	e.Status = models.EmergencyStatus(status)
	e.Reason = reason.String
	e.Action = action.String
	e.ContactName = contactName.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	return e, nil
}

// scanMessage scans a message row in column order
// (id, device_id, session_id, role, text, ml_analysis, flow_metadata, entities, emergency, created_at).
func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var sessionID, analysisJSON, flowMetaJSON, entitiesJSON sql.NullString
	err := row.Scan(&m.ID, &m.DeviceID, &sessionID, &m.Role, &m.Text, &analysisJSON, &flowMetaJSON, &entitiesJSON, &m.Emergency, &m.CreatedAt)
	if err != nil {
		return m, err
	}
	m.SessionID = sessionID.String
	if analysisJSON.String != "" {
		if err := json.Unmarshal([]byte(analysisJSON.String), &m.Analysis); err != nil {
			slog.Warn("scanMessage: failed to decode ml_analysis, skipping", "error", err, "id", m.ID)
			m.Analysis = nil
		}
	}
	if flowMetaJSON.String != "" {
		if err := json.Unmarshal([]byte(flowMetaJSON.String), &m.FlowMeta); err != nil {
			slog.Warn("scanMessage: failed to decode flow_metadata, skipping", "error", err, "id", m.ID)
			m.FlowMeta = nil
		}
	}
	if entitiesJSON.String != "" {
		if err := json.Unmarshal([]byte(entitiesJSON.String), &m.Entities); err != nil {
			slog.Warn("scanMessage: failed to decode entities, skipping", "error", err, "id", m.ID)
			m.Entities = nil
		}
	}
	return m, nil
}

// scanDevice scans a device row in column order
// (device_id, user_id, contact_name, contact_phone, medical_notes, conditions, created_at, updated_at).
func scanDevice(row rowScanner) (models.Device, error) {
	var d models.Device
	var userID, contactName, contactPhone, medicalNotes, conditionsJSON sql.NullString
	err := row.Scan(&d.DeviceID, &userID, &contactName, &contactPhone, &medicalNotes, &conditionsJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	d.UserID = userID.String
	d.ContactName = contactName.String
	d.ContactPhone = contactPhone.String
	d.MedicalNotes = medicalNotes.String
	if conditionsJSON.String != "" {
		if err := json.Unmarshal([]byte(conditionsJSON.String), &d.Conditions); err != nil {
			slog.Warn("scanDevice: failed to decode conditions, skipping", "error", err, "device_id", d.DeviceID)
			d.Conditions = nil
		}
	}
	return d, nil
}

// matchSimilarReminder applies the due-time window logic shared by the SQL
// backends: candidates arrive newest first and already exclude cancelled rows.
func matchSimilarReminder(candidates []models.Reminder, dueAt *time.Time, window time.Duration) *models.Reminder {
	if dueAt != nil {
		for _, r := range candidates {
			if r.DueAt != nil && absDuration(r.DueAt.Sub(*dueAt)) <= window {
				match := r
				return &match
			}
		}
		return nil
	}
	if len(candidates) > 0 {
		match := candidates[0]
		return &match
	}
	return nil
}
