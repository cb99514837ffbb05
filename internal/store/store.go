// Package store provides storage backends for Amparo.
//
// It defines the persistence coordinator interface used by the decision
// engine plus an in-memory implementation for tests and local development.
// SQLite and PostgreSQL backends live in their own files.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amparo-ai/amparo/internal/models"
)

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for file paths.
func DetectDSNType(dsn string) string {
	if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the persistence coordinator consumed by the orchestrator and API.
// All reminder/emergency writes are idempotent upserts keyed by
// (device, session, title, due_at) or (device, session, open-status).
type Store interface {
	// EnsureDevice creates the device row if it does not exist yet.
	EnsureDevice(deviceID string) error
	// GetDevice returns the device profile, or nil when unknown.
	GetDevice(deviceID string) (*models.Device, error)
	// SaveDevice creates or updates a device profile.
	SaveDevice(device models.Device) error

	// SaveMessage appends one dialog turn.
	SaveMessage(msg models.Message) error
	// ListMessages returns up to limit most recent turns, newest first.
	// An empty sessionID matches all sessions of the device.
	ListMessages(deviceID, sessionID string, limit int) ([]models.Message, error)

	// CreateReminder inserts a reminder record.
	CreateReminder(rem models.Reminder) error
	// UpdateReminderStatus transitions a reminder's status.
	UpdateReminderStatus(id string, status models.ReminderStatus) error
	// ListReminders returns reminders for a device, optionally filtered by status.
	ListReminders(deviceID string, status models.ReminderStatus, limit int) ([]models.Reminder, error)
	// GetLatestReminder returns the most recent reminder for (device, session), or nil.
	GetLatestReminder(deviceID, sessionID string) (*models.Reminder, error)
	// FindSimilarReminder returns a non-cancelled reminder with the same title
	// whose due time falls within the given window, or the newest titled match
	// when neither side carries a due time. Returns nil when nothing matches.
	FindSimilarReminder(deviceID, sessionID, title string, dueAt *time.Time, window time.Duration) (*models.Reminder, error)
	// CancelReminderDuplicates cancels every reminder with the exact same
	// (device, title, due_at) except keepID.
	CancelReminderDuplicates(deviceID, title string, dueAt *time.Time, keepID string) error

	// CreateEmergencyEvent inserts an emergency event record.
	CreateEmergencyEvent(event models.EmergencyEvent) error
	// UpdateEmergencyStatus transitions an event's status and optionally its
	// action; terminal statuses set resolved_at.
	UpdateEmergencyStatus(id string, status models.EmergencyStatus, action string) error
	// GetLatestOpenEmergency returns the newest open event for (device, session), or nil.
	GetLatestOpenEmergency(deviceID, sessionID string) (*models.EmergencyEvent, error)
	// ListEmergencies returns events for a device, optionally filtered by status.
	ListEmergencies(deviceID string, status models.EmergencyStatus, limit int) ([]models.EmergencyEvent, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for persistent store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database DSN (file path for SQLite, URL for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore keeps all records in process memory. It backs tests and
// credential-less local runs.
type InMemoryStore struct {
	mu          sync.Mutex
	devices     map[string]models.Device
	messages    []models.Message
	reminders   []models.Reminder
	emergencies []models.EmergencyEvent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{devices: make(map[string]models.Device)}
}

// EnsureDevice creates the device row if it does not exist yet.
func (s *InMemoryStore) EnsureDevice(deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[deviceID]; ok {
		return nil
	}
	now := time.Now()
	s.devices[deviceID] = models.Device{DeviceID: deviceID, CreatedAt: now, UpdatedAt: now}
	return nil
}

// GetDevice returns the device profile, or nil when unknown.
func (s *InMemoryStore) GetDevice(deviceID string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[deviceID]; ok {
		return &d, nil
	}
	return nil, nil
}

// SaveDevice creates or updates a device profile.
func (s *InMemoryStore) SaveDevice(device models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.devices[device.DeviceID]; ok {
		device.CreatedAt = existing.CreatedAt
	} else if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now
	s.devices[device.DeviceID] = device
	return nil
}

// SaveMessage appends one dialog turn.
func (s *InMemoryStore) SaveMessage(msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, msg)
	return nil
}

// ListMessages returns up to limit most recent turns, newest first.
func (s *InMemoryStore) ListMessages(deviceID, sessionID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.DeviceID != deviceID {
			continue
		}
		if sessionID != "" && m.SessionID != sessionID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateReminder inserts a reminder record.
func (s *InMemoryStore) CreateReminder(rem models.Reminder) error {
	if !models.IsValidReminderStatus(rem.Status) {
		return models.ErrInvalidReminderStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = now
	}
	rem.UpdatedAt = now
	s.reminders = append(s.reminders, rem)
	return nil
}

// UpdateReminderStatus transitions a reminder's status.
func (s *InMemoryStore) UpdateReminderStatus(id string, status models.ReminderStatus) error {
	if !models.IsValidReminderStatus(status) {
		return models.ErrInvalidReminderStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reminders {
		if s.reminders[i].ID == id {
			s.reminders[i].Status = status
			s.reminders[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return models.ErrRecordNotFound
}

// ListReminders returns reminders for a device, optionally filtered by status.
func (s *InMemoryStore) ListReminders(deviceID string, status models.ReminderStatus, limit int) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.DeviceID != deviceID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetLatestReminder returns the most recent reminder for (device, session), or nil.
func (s *InMemoryStore) GetLatestReminder(deviceID, sessionID string) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.reminders) - 1; i >= 0; i-- {
		r := s.reminders[i]
		if r.DeviceID != deviceID {
			continue
		}
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		return &r, nil
	}
	return nil, nil
}

// FindSimilarReminder looks for a non-cancelled reminder matching title and,
// when due times are known, a due time within the window.
func (s *InMemoryStore) FindSimilarReminder(deviceID, sessionID, title string, dueAt *time.Time, window time.Duration) (*models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []models.Reminder
	for i := len(s.reminders) - 1; i >= 0; i-- {
		r := s.reminders[i]
		if r.DeviceID != deviceID || r.Status == models.ReminderStatusCancelled {
			continue
		}
		if sessionID != "" && r.SessionID != sessionID {
			continue
		}
		if title != "" && r.Title != title {
			continue
		}
		candidates = append(candidates, r)
	}
	if dueAt != nil {
		for _, r := range candidates {
			if r.DueAt != nil && absDuration(r.DueAt.Sub(*dueAt)) <= window {
				match := r
				return &match, nil
			}
		}
		return nil, nil
	}
	if len(candidates) > 0 {
		match := candidates[0]
		return &match, nil
	}
	return nil, nil
}

// CancelReminderDuplicates cancels exact (title, due_at) duplicates except keepID.
func (s *InMemoryStore) CancelReminderDuplicates(deviceID, title string, dueAt *time.Time, keepID string) error {
	if title == "" || dueAt == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reminders {
		r := &s.reminders[i]
		if r.ID == keepID || r.DeviceID != deviceID || r.Title != title {
			continue
		}
		if r.DueAt == nil || !r.DueAt.Equal(*dueAt) {
			continue
		}
		r.Status = models.ReminderStatusCancelled
		r.UpdatedAt = time.Now()
	}
	return nil
}

// CreateEmergencyEvent inserts an emergency event record.
func (s *InMemoryStore) CreateEmergencyEvent(event models.EmergencyEvent) error {
	if !models.IsValidEmergencyStatus(event.Status) {
		return models.ErrInvalidEmergencyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.emergencies = append(s.emergencies, event)
	return nil
}

// UpdateEmergencyStatus transitions an event's status and action.
func (s *InMemoryStore) UpdateEmergencyStatus(id string, status models.EmergencyStatus, action string) error {
	if !models.IsValidEmergencyStatus(status) {
		return models.ErrInvalidEmergencyState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.emergencies {
		if s.emergencies[i].ID != id {
			continue
		}
		s.emergencies[i].Status = status
		if action != "" {
			s.emergencies[i].Action = action
		}
		if models.IsTerminalEmergencyStatus(status) {
			now := time.Now()
			s.emergencies[i].ResolvedAt = &now
		}
		return nil
	}
	return models.ErrRecordNotFound
}

// GetLatestOpenEmergency returns the newest open event for (device, session), or nil.
func (s *InMemoryStore) GetLatestOpenEmergency(deviceID, sessionID string) (*models.EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.emergencies) - 1; i >= 0; i-- {
		e := s.emergencies[i]
		if e.DeviceID != deviceID || !e.IsOpen() {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		return &e, nil
	}
	return nil, nil
}

// ListEmergencies returns events for a device, optionally filtered by status.
func (s *InMemoryStore) ListEmergencies(deviceID string, status models.EmergencyStatus, limit int) ([]models.EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EmergencyEvent
	for i := len(s.emergencies) - 1; i >= 0; i-- {
		e := s.emergencies[i]
		if e.DeviceID != deviceID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
