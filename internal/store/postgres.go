package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/amparo-ai/amparo/internal/models"
	_ "github.com/lib/pq"
)

// Connection pool settings for the PostgreSQL store.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists records in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store from a connection DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// EnsureDevice creates the device row if it does not exist yet.
func (s *PostgresStore) EnsureDevice(deviceID string) error {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO devices (device_id, created_at, updated_at) VALUES ($1, $2, $3) ON CONFLICT (device_id) DO NOTHING`, deviceID, now, now)
	if err != nil {
		slog.Error("PostgresStore EnsureDevice failed", "error", err, "deviceID", deviceID)
		return fmt.Errorf("failed to ensure device %s: %w", deviceID, err)
	}
	return nil
}

// GetDevice returns the device profile, or nil when unknown.
func (s *PostgresStore) GetDevice(deviceID string) (*models.Device, error) {
	row := s.db.QueryRow(`SELECT device_id, user_id, contact_name, contact_phone, medical_notes, conditions, created_at, updated_at FROM devices WHERE device_id = $1`, deviceID)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDevice failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return &d, nil
}

// SaveDevice creates or updates a device profile.
func (s *PostgresStore) SaveDevice(device models.Device) error {
	conditions, err := marshalOrNull(device.Conditions)
	if err != nil {
		slog.Error("PostgresStore SaveDevice marshal failed", "error", err, "deviceID", device.DeviceID)
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO devices (device_id, user_id, contact_name, contact_phone, medical_notes, conditions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (device_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			contact_name = EXCLUDED.contact_name,
			contact_phone = EXCLUDED.contact_phone,
			medical_notes = EXCLUDED.medical_notes,
			conditions = EXCLUDED.conditions,
			updated_at = EXCLUDED.updated_at`,
		device.DeviceID, nilIfEmpty(device.UserID), nilIfEmpty(device.ContactName), nilIfEmpty(device.ContactPhone),
		nilIfEmpty(device.MedicalNotes), conditions, now, now)
	if err != nil {
		slog.Error("PostgresStore SaveDevice failed", "error", err, "deviceID", device.DeviceID)
		return fmt.Errorf("failed to save device %s: %w", device.DeviceID, err)
	}
	slog.Debug("PostgresStore SaveDevice succeeded", "deviceID", device.DeviceID)
	return nil
}

// SaveMessage appends one dialog turn.
func (s *PostgresStore) SaveMessage(msg models.Message) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		msg.ID, msg.DeviceID, nilIfEmpty(msg.SessionID), msg.Role, msg.Text, analysis, flowMeta, entities, msg.Emergency, msg.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveMessage failed", "error", err, "deviceID", msg.DeviceID)
		return fmt.Errorf("failed to insert message for %s: %w", msg.DeviceID, err)
	}
	slog.Debug("PostgresStore SaveMessage succeeded", "deviceID", msg.DeviceID, "role", msg.Role)
	return nil
}

// ListMessages returns up to limit most recent turns, newest first.
func (s *PostgresStore) ListMessages(deviceID, sessionID string, limit int) ([]models.Message, error) {
	query := `SELECT id, device_id, session_id, role, text, ml_analysis, flow_metadata, entities, emergency, created_at
		FROM messages WHERE device_id = $1`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, len(args)+1)
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListMessages query failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			slog.Error("PostgresStore ListMessages scan failed", "error", err)
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
func (s *PostgresStore) CreateReminder(rem models.Reminder) error {
	if !models.IsValidReminderStatus(rem.Status) {
		return models.ErrInvalidReminderStatus
	}
	now := time.Now()
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO reminders (id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rem.ID, rem.DeviceID, nilIfEmpty(rem.SessionID), nilIfEmpty(rem.Title), nilIfNoTime(rem.DueAt),
		nilIfEmpty(rem.Timezone), string(rem.Status), rem.CreatedAt, now)
	if err != nil {
		slog.Error("PostgresStore CreateReminder failed", "error", err, "deviceID", rem.DeviceID)
		return fmt.Errorf("failed to insert reminder: %w", err)
	}
	slog.Debug("PostgresStore CreateReminder succeeded", "id", rem.ID, "status", rem.Status)
	return nil
}

// UpdateReminderStatus transitions a reminder's status.
func (s *PostgresStore) UpdateReminderStatus(id string, status models.ReminderStatus) error {
	if !models.IsValidReminderStatus(status) {
		return models.ErrInvalidReminderStatus
	}
	res, err := s.db.Exec(`UPDATE reminders SET status = $1, updated_at = $2 WHERE id = $3`, string(status), time.Now(), id)
	if err != nil {
		slog.Error("PostgresStore UpdateReminderStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update reminder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	slog.Debug("PostgresStore UpdateReminderStatus succeeded", "id", id, "status", status)
	return nil
}

// ListReminders returns reminders for a device, optionally filtered by status.
func (s *PostgresStore) ListReminders(deviceID string, status models.ReminderStatus, limit int) ([]models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = $1`
	args := []interface{}{deviceID}
	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListReminders query failed", "error", err, "deviceID", deviceID)
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
func (s *PostgresStore) GetLatestReminder(deviceID, sessionID string) (*models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = $1`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, len(args)+1)
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestReminder failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get latest reminder: %w", err)
	}
	return &r, nil
}

// FindSimilarReminder looks for a non-cancelled reminder matching title and,
// when due times are known, a due time within the window.
func (s *PostgresStore) FindSimilarReminder(deviceID, sessionID, title string, dueAt *time.Time, window time.Duration) (*models.Reminder, error) {
	query := `SELECT id, device_id, session_id, title, due_at, timezone, status, created_at, updated_at
		FROM reminders WHERE device_id = $1 AND status != 'cancelled'`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, len(args)+1)
		args = append(args, sessionID)
	}
	if title != "" {
		query += fmt.Sprintf(` AND title = $%d`, len(args)+1)
		args = append(args, title)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore FindSimilarReminder query failed", "error", err, "deviceID", deviceID)
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
func (s *PostgresStore) CancelReminderDuplicates(deviceID, title string, dueAt *time.Time, keepID string) error {
	if title == "" || dueAt == nil {
		return nil
	}
	_, err := s.db.Exec(`UPDATE reminders SET status = 'cancelled', updated_at = $1
		WHERE device_id = $2 AND title = $3 AND due_at = $4 AND id != $5`,
		time.Now(), deviceID, title, *dueAt, keepID)
	if err != nil {
		slog.Error("PostgresStore CancelReminderDuplicates failed", "error", err, "deviceID", deviceID)
		return fmt.Errorf("failed to cancel reminder duplicates: %w", err)
	}
	return nil
}

// CreateEmergencyEvent inserts an emergency event record.
func (s *PostgresStore) CreateEmergencyEvent(event models.EmergencyEvent) error {
	if !models.IsValidEmergencyStatus(event.Status) {
		return models.ErrInvalidEmergencyState
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO emergency_events (id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.DeviceID, nilIfEmpty(event.SessionID), string(event.Status), nilIfEmpty(event.Reason),
		nilIfEmpty(event.Action), nilIfEmpty(event.ContactName), event.CreatedAt, nilIfNoTime(event.ResolvedAt))
	if err != nil {
		slog.Error("PostgresStore CreateEmergencyEvent failed", "error", err, "deviceID", event.DeviceID)
		return fmt.Errorf("failed to insert emergency event: %w", err)
	}
	slog.Debug("PostgresStore CreateEmergencyEvent succeeded", "id", event.ID, "status", event.Status)
	return nil
}

// UpdateEmergencyStatus transitions an event's status and action.
func (s *PostgresStore) UpdateEmergencyStatus(id string, status models.EmergencyStatus, action string) error {
	if !models.IsValidEmergencyStatus(status) {
		return models.ErrInvalidEmergencyState
	}
	var resolvedAt interface{}
	if models.IsTerminalEmergencyStatus(status) {
		resolvedAt = time.Now()
	}
	res, err := s.db.Exec(`UPDATE emergency_events
		SET status = $1, action = COALESCE($2, action), resolved_at = COALESCE($3, resolved_at)
		WHERE id = $4`,
		string(status), nilIfEmpty(action), resolvedAt, id)
	if err != nil {
		slog.Error("PostgresStore UpdateEmergencyStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update emergency event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrRecordNotFound
	}
	slog.Debug("PostgresStore UpdateEmergencyStatus succeeded", "id", id, "status", status)
	return nil
}

// GetLatestOpenEmergency returns the newest open event for (device, session), or nil.
func (s *PostgresStore) GetLatestOpenEmergency(deviceID, sessionID string) (*models.EmergencyEvent, error) {
	query := `SELECT id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at
		FROM emergency_events WHERE device_id = $1 AND status NOT IN ('resolved', 'cancelled')`
	args := []interface{}{deviceID}
	if sessionID != "" {
		query += fmt.Sprintf(` AND session_id = $%d`, len(args)+1)
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	e, err := scanEmergency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetLatestOpenEmergency failed", "error", err, "deviceID", deviceID)
		return nil, fmt.Errorf("failed to get open emergency: %w", err)
	}
	return &e, nil
}

// ListEmergencies returns events for a device, optionally filtered by status.
func (s *PostgresStore) ListEmergencies(deviceID string, status models.EmergencyStatus, limit int) ([]models.EmergencyEvent, error) {
	query := `SELECT id, device_id, session_id, status, reason, action, contact_name, created_at, resolved_at
		FROM emergency_events WHERE device_id = $1`
	args := []interface{}{deviceID}
	if status != "" {
		query += fmt.Sprintf(` AND status = $%d`, len(args)+1)
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListEmergencies query failed", "error", err, "deviceID", deviceID)
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

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
