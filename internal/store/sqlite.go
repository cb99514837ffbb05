// Package store provides storage backends for Amparo.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/amparo-ai/amparo/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store. The DSN is a file path to the
// database file; its directory is created when missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// EnsureDevice creates the device row if it does not exist yet.
func (s *SQLiteStore) EnsureDevice(deviceID string) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO devices (device_id, created_at, updated_at) VALUES (?, ?, ?)`, deviceID, now, now)
	if err != nil {
		slog.Error("SQLiteStore EnsureDevice failed", "error", err, "deviceID", deviceID)
		return fmt.Errorf("failed to ensure device %s: %w", deviceID, err)
	}
	return nil
}

// GetDevice returns the device profile, or nil when unknown.
func (s *SQLiteStore) GetDevice(deviceID string) (*models.Device, error) {
	row := s.db.QueryRow(`SELECT device_id, user_id, contact_name, contact_phone, medical_notes, conditions, created_at, updated_at FROM devices WHERE device_id = ?`, deviceID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDevice failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return &d, nil
}

// SaveDevice creates or updates a device profile.
func (s *SQLiteStore) SaveDevice(device models.Device) error {
	conditions, err := marshalOrNull(device.Conditions)
	if err != nil {
		slog.Error("SQLiteStore SaveDevice marshal failed", "error", err, "deviceID", device.DeviceID)
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO devices (device_id, user_id, contact_name, contact_phone, medical_notes, conditions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			user_id = excluded.user_id,
			contact_name = excluded.contact_name,
			contact_phone = excluded.contact_phone,
			medical_notes = excluded.medical_notes,
			conditions = excluded.conditions,
			updated_at = excluded.updated_at`,
		device.DeviceID, nilIfEmpty(device.UserID), nilIfEmpty(device.ContactName), nilIfEmpty(device.ContactPhone),
		nilIfEmpty(device.MedicalNotes), conditions, now, now)
	if err != nil {
		slog.Error("SQLiteStore SaveDevice failed", "error", err, "deviceID", device.DeviceID)
		return fmt.Errorf("failed to save device %s: %w", device.DeviceID, err)
	}
	slog.Debug("SQLiteStore SaveDevice succeeded", "deviceID", device.DeviceID)
	return nil
}

// SaveMessage appends one dialog turn.
func (s *SQLiteStore) SaveMessage(msg models.Message) error {
	analysis, err := marshalOrNull(msg.Analysis)
	if err != nil {
		return err
	}
	flowMeta, err := marshalOrNull(msg.FlowMeta)
	if err != nil {
		return err
	}
	entities, err := marshalOrNull(msg.Entities)
	if err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err = s.db.Exec(`
		INSERT INTO messages (id, device_id, session_id, role, text, ml_analysis, flow_metadata, entities, emergency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.DeviceID, nilIfEmpty(msg.SessionID), msg.Role, msg.Text, analysis, flowMeta, entities, msg.Emergency, msg.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveMessage failed", "error", err, "deviceID", msg.DeviceID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.DeviceID, err)
	}
	slog.Debug("SQLiteStore SaveMessage succeeded", "deviceID", msg.DeviceID, "role", msg.Role)
	return nil
}

// ListMessages returns up to limit most recent turns, newest first.
func (s *SQLiteStore) ListMessages(deviceID, sessionID string, limit int) ([]models.Message, error) {
	query := `SELECT id, device_id, session_id, role, text, ml_analysis, flow_metadata, entities, emergency, created_at
		FROM messages WHERE device_id = ?`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListMessages query failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("SQLiteStore ListMessages scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	return messages, nil
}

// CreateReminder inserts a reminder record.
func (s *SQLiteStore) CreateReminder(rem models.Reminder) error {
	if !models.IsValidReminderStatus(rem.Status) {
		return models.ErrInvalidReminderStatus
	}
	now := time.Now()
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO reminders (id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rem.ID, rem.DeviceID, nilIfEmpty(rem.SessionID), nilIfEmpty(rem.Title), nilIfNoTime(rem.DueAt),
		nilIfEmpty(rem.Timezone), string(rem.Status), rem.CreatedAt, now)
	if err != nil {
		slog.Error("SQLiteStore CreateReminder failed", "error", err, "deviceID", rem.DeviceID)
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	slog.Debug("SQLiteStore CreateReminder succeeded", "id", rem.ID, "status", rem.Status)
	return nil
}

// UpdateReminderStatus transitions a reminder's status.
func (s *SQLiteStore) UpdateReminderStatus(id string, status models.ReminderStatus) error {
	if !models.IsValidReminderStatus(status) {
		return models.ErrInvalidReminderStatus
	}
	res, err := s.db.Exec(`UPDATE reminders SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now(), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateReminderStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update reminder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	slog.Debug("SQLiteStore UpdateReminderStatus succeeded", "id", id, "status", status)
	return nil
}

// ListReminders returns reminders for a device, optionally filtered by status.
func (s *SQLiteStore) ListReminders(deviceID string, status models.ReminderStatus, limit int) ([]models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = ?`
	args := []interface{}{deviceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListReminders query failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer rows.Close()

	var reminders []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminder rows: %w", err)
	}
	return reminders, nil
}

// GetLatestReminder returns the most recent reminder for (device, session), or nil.
func (s *SQLiteStore) GetLatestReminder(deviceID, sessionID string) (*models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = ?`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestReminder failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get latest reminder: %w", err)
	}
	return &r, nil
}

// FindSimilarReminder looks for a non-cancelled reminder matching title and,
// when due times are known, a due time within the window.
func (s *SQLiteStore) FindSimilarReminder(deviceID, sessionID, title string, dueAt *time.Time, window time.Duration) (*models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = ? AND status != 'cancelled'`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	if title != "" {
		query += ` AND title = ?`
		args = append(args, title)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore FindSimilarReminder query failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to query similar reminders: %w", err)
	}
	defer rows.Close()

	var candidates []models.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder row: %w", err)
		}
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reminder rows: %w", err)
	}
	return matchSimilarReminder(candidates, dueAt, window), nil
}

// CancelReminderDuplicates cancels exact (title, due_at) duplicates except keepID.
func (s *SQLiteStore) CancelReminderDuplicates(deviceID, title string, dueAt *time.Time, keepID string) error {
	if title == "" || dueAt == nil {
		return nil
	}
	_, err := s.db.Exec(`UPDATE reminders SET status = 'cancelled', updated_at = ?
		WHERE device_id = ? AND title = ? AND due_at = ? AND id != ?`,
		time.Now(), deviceID, title, *dueAt, keepID)
	if err != nil {
		slog.Error("SQLiteStore CancelReminderDuplicates failed", "error", err, "deviceID", deviceID)
		return fmt.Errorf("failed to cancel reminder duplicates: %w", err)
	}
	return nil
}

// CreateEmergencyEvent inserts an emergency event record.
func (s *SQLiteStore) CreateEmergencyEvent(event models.EmergencyEvent) error {
	if !models.IsValidEmergencyStatus(event.Status) {
		return models.ErrInvalidEmergencyState
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO emergency_events (id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.DeviceID, nilIfEmpty(event.SessionID), string(event.Status), nilIfEmpty(event.Reason),
		nilIfEmpty(event.Action), nilIfEmpty(event.ContactName), event.CreatedAt, nilIfNoTime(event.ResolvedAt))
	if err != nil {
		slog.Error("SQLiteStore CreateEmergencyEvent failed", "error", err, "deviceID", event.DeviceID)
		return fmt.Errorf("failed to insert emergency event: %w", err)
	}
	slog.Debug("SQLiteStore CreateEmergencyEvent succeeded", "id", event.ID, "status", event.Status)
	return nil
}

// UpdateEmergencyStatus transitions an event's status and action.
func (s *SQLiteStore) UpdateEmergencyStatus(id string, status models.EmergencyStatus, action string) error {
	if !models.IsValidEmergencyStatus(status) {
		return models.ErrInvalidEmergencyState
	}
	var resolvedAt interface{}
	if models.IsTerminalEmergencyStatus(status) {
		resolvedAt = time.Now()
	}
	res, err := s.db.Exec(`UPDATE emergency_events
		SET status = ?, action = COALESCE(?, action), resolved_at = COALESCE(?, resolved_at)
		WHERE id = ?`,
		string(status), nilIfEmpty(action), resolvedAt, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateEmergencyStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update emergency event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	slog.Debug("SQLiteStore UpdateEmergencyStatus succeeded", "id", id, "status", status)
	return nil
}

// GetLatestOpenEmergency returns the newest open event for (device, session), or nil.
func (s *SQLiteStore) GetLatestOpenEmergency(deviceID, sessionID string) (*models.EmergencyEvent, error) {
	query := `SELECT id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at
		FROM emergency_events WHERE device_id = ? AND status NOT IN ('resolved', 'cancelled')`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	e, err := scanEmergency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetLatestOpenEmergency failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get open emergency: %w", err)
	}
	return &e, nil
}

// ListEmergencies returns events for a device, optionally filtered by status.
func (s *SQLiteStore) ListEmergencies(deviceID string, status models.EmergencyStatus, limit int) ([]models.EmergencyEvent, error) {
	query := `SELECT id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at
		FROM emergency_events WHERE device_id = ?`
	args := []interface{}{deviceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListEmergencies query failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to query emergency events: %w", err)
	}
	defer rows.Close()

	var events []models.EmergencyEvent
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency rows: %w", err)
	}
	return events, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
