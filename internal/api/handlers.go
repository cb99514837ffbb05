// Package api provides HTTP handlers for Amparo endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/amparo-ai/amparo/internal/flow"
	"github.com/amparo-ai/amparo/internal/models"
)

const defaultListLimit = 50

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// chatHandler runs one conversational turn. The response body is the raw
// turn result, not the APIResponse envelope: the frontend reads reply,
// emergency and flow directly.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	req.Text = flow.CleanText(req.Text)
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	slog.Debug("Server.chatHandler: parsed request", "deviceID", req.DeviceID, "sessionID", req.SessionID)

	if err := s.store.EnsureDevice(req.DeviceID); err != nil {
		slog.Warn("Server.chatHandler: could not ensure device", "error", err, "deviceID", req.DeviceID)
	}
	if err := s.store.SaveMessage(models.Message{
		ID:        uuid.NewString(),
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Role:      models.RoleUser,
		Text:      req.Text,
	}); err != nil {
		slog.Warn("Server.chatHandler: could not save user message", "error", err, "deviceID", req.DeviceID)
	}

	resp, err := s.engine.Process(r.Context(), req)
	if err != nil {
		slog.Error("Server.chatHandler: turn processing failed", "error", err, "deviceID", req.DeviceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	if err := s.store.SaveMessage(models.Message{
		ID:        uuid.NewString(),
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Role:      models.RoleAssistant,
		Text:      resp.Reply,
		Analysis: &models.MessageAnalysis{
			Intent:    resp.Intent,
			Sentiment: resp.Sentiment,
			Emotion:   resp.Emotion,
		},
		FlowMeta: &models.FlowMetadata{
			Assigned: resp.Flow,
			Reason:   resp.FlowReason,
			Source:   resp.FlowSource,
			Gate:     resp.Gate,
			Decoder:  resp.Decoder,
		},
		Entities:  resp.Entities,
		Emergency: resp.Emergency,
	}); err != nil {
		slog.Warn("Server.chatHandler: could not save assistant message", "error", err, "deviceID", req.DeviceID)
	}

	slog.Info("Server.chatHandler: turn completed", "deviceID", req.DeviceID, "flow", resp.Flow, "emergency", resp.Emergency)
	writeJSONResponse(w, http.StatusOK, resp)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("device_id is required"))
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	limit := queryLimit(r, defaultListLimit)

	messages, err := s.store.ListMessages(deviceID, sessionID, limit)
	if err != nil {
		slog.Error("Server.historyHandler: failed to list messages", "error", err, "deviceID", deviceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list messages"))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

func (s *Server) remindersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("device_id is required"))
		return
	}
	status := models.ReminderStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidReminderStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid reminder status"))
		return
	}
	limit := queryLimit(r, defaultListLimit)

	reminders, err := s.store.ListReminders(deviceID, status, limit)
	if err != nil {
		slog.Error("Server.remindersHandler: failed to list reminders", "error", err, "deviceID", deviceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list reminders"))
		return
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(reminders))
}

func (s *Server) cancelReminderHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("reminder id is required"))
		return
	}
	if err := s.store.UpdateReminderStatus(body.ID, models.ReminderStatusCancelled); err != nil {
		if err == models.ErrRecordNotFound {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Reminder not found"))
			return
		}
		slog.Error("Server.cancelReminderHandler: failed to cancel reminder", "error", err, "id", body.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel reminder"))
		return
	}
	slog.Info("Server.cancelReminderHandler: reminder cancelled", "id", body.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Reminder cancelled", nil))
}

func (s *Server) emergenciesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("device_id is required"))
		return
	}
	status := models.EmergencyStatus(r.URL.Query().Get("status"))
	if status != "" && !models.IsValidEmergencyStatus(status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid emergency status"))
		return
	}
	limit := queryLimit(r, defaultListLimit)

	events, err := s.store.ListEmergencies(deviceID, status, limit)
	if err != nil {
		slog.Error("Server.emergenciesHandler: failed to list emergencies", "error", err, "deviceID", deviceID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list emergencies"))
		return
	}
	if events == nil {
		events = []models.EmergencyEvent{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(events))
}

func (s *Server) resolveEmergencyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("emergency event id is required"))
		return
	}
	if err := s.store.UpdateEmergencyStatus(body.ID, models.EmergencyStatusResolved, ""); err != nil {
		if err == models.ErrRecordNotFound {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Emergency event not found"))
			return
		}
		slog.Error("Server.resolveEmergencyHandler: failed to resolve emergency", "error", err, "id", body.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve emergency"))
		return
	}
	slog.Info("Server.resolveEmergencyHandler: emergency resolved", "id", body.ID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Emergency resolved", nil))
}

// devicesHandler saves a device profile on POST and returns one on GET.
func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if r.Body != nil {
			defer r.Body.Close()
		}
		var device models.Device
		if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if device.DeviceID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("device_id is required"))
			return
		}
		if err := s.store.SaveDevice(device); err != nil {
			slog.Error("Server.devicesHandler: failed to save device", "error", err, "deviceID", device.DeviceID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save device"))
			return
		}
		slog.Info("Server.devicesHandler: device saved", "deviceID", device.DeviceID)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Device saved", nil))
	case http.MethodGet:
		deviceID := r.URL.Query().Get("device_id")
		if deviceID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("device_id is required"))
			return
		}
		device, err := s.store.GetDevice(deviceID)
		if err != nil {
			slog.Error("Server.devicesHandler: failed to get device", "error", err, "deviceID", deviceID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get device"))
			return
		}
		if device == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Device not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(device))
	default:
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
