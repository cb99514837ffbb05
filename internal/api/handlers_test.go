package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/flow"
	"github.com/amparo-ai/amparo/internal/models"
	"github.com/amparo-ai/amparo/internal/store"
)

type fakeGateway struct {
	result classify.Result
}

func (f *fakeGateway) Classify(ctx context.Context, text string) (classify.Result, error) {
	return f.result, nil
}

func newTestServer(st store.Store) *Server {
	cfg := flow.DefaultConfig()
	cfg.Timezone = "UTC"
	gw := &fakeGateway{result: classify.Result{
		Intent:    models.Classification{Label: "saludo", Score: 0.95},
		Sentiment: models.Classification{Label: "NEU", Score: 0.8},
		Emotion:   models.Classification{Label: "neutral", Score: 0.7},
	}}
	engine := flow.NewEngine(cfg, st, gw, nil, nil, flow.NewExtractor("UTC"), flow.NewReplyGenerator(nil, cfg.DecoderContextTurns), nil)
	return NewServer(engine, st, WithAddr(":0"))
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(store.NewInMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestChatHandlerTurn(t *testing.T) {
	st := store.NewInMemoryStore()
	s := newTestServer(st)

	w := postJSON(t, s.chatHandler, "/chat", models.ChatRequest{
		Text:      "Hola, ¿cómo estás?",
		DeviceID:  "dev-1",
		SessionID: "ses-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Reply == "" {
		t.Error("expected a non-empty reply")
	}
	if resp.Flow != models.FlowCompanionship {
		t.Errorf("expected companionship flow, got %s", resp.Flow)
	}
	if resp.Emergency {
		t.Error("expected no emergency flag")
	}

	// Both the user and assistant turns must be persisted, diacritics
	// stripped but case preserved on the user side.
	msgs, err := st.ListMessages("dev-1", "ses-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[1].Role != models.RoleUser || msgs[1].Text != "Hola, ¿como estas?" {
		t.Errorf("unexpected user turn %+v", msgs[1])
	}
	if msgs[0].Role != models.RoleAssistant || msgs[0].FlowMeta == nil {
		t.Errorf("unexpected assistant turn %+v", msgs[0])
	}
	if msgs[0].FlowMeta.Assigned != models.FlowCompanionship {
		t.Errorf("expected assigned flow recorded, got %s", msgs[0].FlowMeta.Assigned)
	}
}

func TestChatHandlerRejectsBadRequests(t *testing.T) {
	s := newTestServer(store.NewInMemoryStore())

	// Wrong method.
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	w := httptest.NewRecorder()
	s.chatHandler(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}

	// Malformed JSON.
	req = httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{no es json")))
	w = httptest.NewRecorder()
	s.chatHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad JSON, got %d", w.Code)
	}

	// Missing fields.
	w = postJSON(t, s.chatHandler, "/chat", models.ChatRequest{Text: "hola"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing fields, got %d", w.Code)
	}
}

func TestDevicesHandlerRoundTrip(t *testing.T) {
	s := newTestServer(store.NewInMemoryStore())

	w := postJSON(t, s.devicesHandler, "/devices", models.Device{
		DeviceID:     "dev-1",
		ContactName:  "Maria",
		ContactPhone: "+5215512345678",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/devices?device_id=dev-1", nil)
	rec := httptest.NewRecorder()
	s.devicesHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Status models.APIStatus `json:"status"`
		Result models.Device    `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != models.APIStatusOK || resp.Result.ContactName != "Maria" {
		t.Errorf("unexpected response %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/devices?device_id=missing", nil)
	rec = httptest.NewRecorder()
	s.devicesHandler(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown device, got %d", rec.Code)
	}
}

func TestRemindersHandlerList(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateReminder(models.Reminder{
		ID:       "r1",
		DeviceID: "dev-1",
		Title:    "tomar medicina",
		Status:   models.ReminderStatusDraft,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := newTestServer(st)

	req := httptest.NewRequest(http.MethodGet, "/reminders?device_id=dev-1", nil)
	w := httptest.NewRecorder()
	s.remindersHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Status models.APIStatus  `json:"status"`
		Result []models.Reminder `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Result) != 1 || resp.Result[0].Title != "tomar medicina" {
		t.Errorf("unexpected reminders %+v", resp.Result)
	}

	// Missing device_id.
	req = httptest.NewRequest(http.MethodGet, "/reminders", nil)
	w = httptest.NewRecorder()
	s.remindersHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	// Invalid status filter.
	req = httptest.NewRequest(http.MethodGet, "/reminders?device_id=dev-1&status=bogus", nil)
	w = httptest.NewRecorder()
	s.remindersHandler(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad status, got %d", w.Code)
	}
}

func TestCancelReminderHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateReminder(models.Reminder{
		ID:       "r1",
		DeviceID: "dev-1",
		Title:    "tomar medicina",
		Status:   models.ReminderStatusDraft,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := newTestServer(st)

	w := postJSON(t, s.cancelReminderHandler, "/reminders/cancel", map[string]string{"id": "r1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	cancelled, _ := st.ListReminders("dev-1", models.ReminderStatusCancelled, 10)
	if len(cancelled) != 1 {
		t.Errorf("expected reminder cancelled, got %+v", cancelled)
	}

	w = postJSON(t, s.cancelReminderHandler, "/reminders/cancel", map[string]string{"id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestResolveEmergencyHandler(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.CreateEmergencyEvent(models.EmergencyEvent{
		ID:       "e1",
		DeviceID: "dev-1",
		Status:   models.EmergencyStatusEscalated,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := newTestServer(st)

	w := postJSON(t, s.resolveEmergencyHandler, "/emergencies/resolve", map[string]string{"id": "e1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	open, _ := st.GetLatestOpenEmergency("dev-1", "")
	if open != nil {
		t.Errorf("expected no open emergency after resolve, got %+v", open)
	}

	w = postJSON(t, s.resolveEmergencyHandler, "/emergencies/resolve", map[string]string{"id": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHistoryHandlerEmpty(t *testing.T) {
	s := newTestServer(store.NewInMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/history?device_id=dev-1", nil)
	w := httptest.NewRecorder()
	s.historyHandler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Status models.APIStatus `json:"status"`
		Result []models.Message `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result == nil {
		t.Error("expected empty array, not null")
	}
}
