package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amparo-ai/amparo/internal/classify"
	"github.com/amparo-ai/amparo/internal/gate"
	"github.com/amparo-ai/amparo/internal/models"
	"github.com/amparo-ai/amparo/internal/notify"
	"github.com/amparo-ai/amparo/internal/store"
)

// Fixed replies for turns that never reach the LLM decoder.
const (
	blockedReply  = "Mensaje bloqueado por seguridad. Si necesitas ayuda urgente, contacta a un servicio de emergencia."
	protocolReply = "Protocolo de emergencia activado."
)

// Engine runs the per-turn decision pipeline: gate, classify, local policy
// plus optional LLM advisory, sub-flow refinement, persistence and reply
// generation.
type Engine struct {
	cfg        Config
	store      store.Store
	classifier classify.Gateway
	gate       gate.Gate
	validator  *Validator
	extractor  *Extractor
	decoder    *ReplyGenerator
	notifier   notify.Notifier
}

// NewEngine wires the engine. A nil validator disables the advisory; a nil
// notifier is replaced by a no-op.
func NewEngine(cfg Config, st store.Store, classifier classify.Gateway, g gate.Gate, validator *Validator, extractor *Extractor, decoder *ReplyGenerator, notifier notify.Notifier) *Engine {
	if g == nil {
		g = gate.BypassGate{}
	}
	if extractor == nil {
		extractor = NewExtractor(cfg.Timezone)
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Engine{
		cfg:        cfg,
		store:      st,
		classifier: classifier,
		gate:       g,
		validator:  validator,
		extractor:  extractor,
		decoder:    decoder,
		notifier:   notifier,
	}
}

// Process runs one turn. It returns an error only when classification fails;
// every other collaborator degrades and the turn still produces a reply.
func (e *Engine) Process(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	start := time.Now()
	normText := Normalize(req.Text)

	verdict := e.gate.Check(ctx, req.Text)

	recent, err := e.store.ListMessages(req.DeviceID, req.SessionID, e.cfg.HistoryLimit)
	if err != nil {
		slog.Warn("Could not load dialog history", "error", err, "deviceID", req.DeviceID)
		recent = nil
	}
	device, err := e.store.GetDevice(req.DeviceID)
	if err != nil {
		slog.Warn("Could not load device profile", "error", err, "deviceID", req.DeviceID)
		device = nil
	}

	if !verdict.Allow {
		if verdict.Emergency {
			return e.processForcedEmergency(ctx, req, verdict, start), nil
		}
		return models.ChatResponse{
			Reply:        blockedReply,
			Emergency:    false,
			Flow:         models.FlowBlocked,
			Intent:       models.Classification{Label: string(models.FlowBlocked)},
			Sentiment:    models.Classification{Label: "NEU"},
			Emotion:      models.Classification{Label: "neutral"},
			Entities:     []models.Entity{},
			Decoder:      DecoderGate,
			Gate:         verdict.Reason,
			FlowSource:   models.SourceGate,
			FlowReason:   "gate_block",
			ProcessingMS: time.Since(start).Milliseconds(),
		}, nil
	}

	analysis, err := e.classifier.Classify(ctx, req.Text)
	if err != nil {
		slog.Error("Classification failed, aborting turn", "error", err, "deviceID", req.DeviceID)
		return models.ChatResponse{}, fmt.Errorf("classification failed: %w", err)
	}

	local := DecideLocal(e.cfg, normText, analysis.Intent, verdict)
	advisory := e.collectAdvisory(ctx, req.Text, analysis, recent)
	decision := Merge(local, advisory)

	if advisory != nil && advisory.Flow != local.Flow {
		slog.Info("Flow disagreement resolved",
			"local", local.Flow, "score", analysis.Intent.Score,
			"llm", advisory.Flow, "final", decision.Flow, "reason", decision.Reason)
	} else if advisory != nil {
		slog.Info("Flow consensus", "flow", decision.Flow)
	} else {
		slog.Debug("Using local flow only", "flow", decision.Flow)
	}

	var emergencyAction, contactName, contactPhone string
	if device != nil {
		contactName = device.ContactName
		contactPhone = device.ContactPhone
	}
	switch decision.Flow {
	case models.FlowEmergency:
		decision, emergencyAction = RefineEmergency(normText, decision, contactName, contactPhone)
	case models.FlowReminder:
		decision = RefineReminder(normText, decision)
	}

	var reply, decoderSource string
	if decision.Flow == models.FlowEmergency {
		reply, decoderSource = protocolReply, DecoderEmergency
	} else {
		reply, decoderSource = e.decoder.Generate(ctx, req.Text, analysis, recent, device)
	}

	var reminderIDs []string
	var emergencyEventID string
	switch decision.Flow {
	case models.FlowReminder:
		reminderIDs = e.persistReminders(req, normText, decision, analysis.Entities)
	case models.FlowEmergency:
		emergencyEventID = e.persistEmergency(ctx, req, decision, emergencyAction, contactName, contactPhone)
	}

	resp := models.ChatResponse{
		Reply:            reply,
		Emergency:        decision.Flow == models.FlowEmergency || verdict.Emergency,
		Flow:             decision.Flow,
		EmergencyEventID: emergencyEventID,
		Intent:           analysis.Intent,
		Sentiment:        analysis.Sentiment,
		Emotion:          analysis.Emotion,
		Entities:         analysis.Entities,
		Decoder:          decoderSource,
		Gate:             verdict.Reason,
		FlowSource:       decision.Source,
		FlowReason:       decision.Reason,
		ReminderIDs:      reminderIDs,
		NextPrompt:       decision.NextPrompt,
		ProcessingMS:     time.Since(start).Milliseconds(),
	}
	slog.Info("Orchestrated turn",
		"flow", decision.Flow, "source", decision.Source,
		"intent", analysis.Intent.Label, "decoder", decoderSource,
		"processing_ms", resp.ProcessingMS)
	return resp, nil
}

// processForcedEmergency handles a gate-blocked turn flagged as an emergency:
// the block is overridden, the emergency protocol is activated directly and
// the event is persisted as detected.
func (e *Engine) processForcedEmergency(ctx context.Context, req models.ChatRequest, verdict gate.Verdict, start time.Time) models.ChatResponse {
	slog.Warn("Gate blocked turn but flagged emergency, forcing emergency flow", "deviceID", req.DeviceID)

	intent := models.Classification{
		Label: "emergencia_medica",
		Score: 1.0,
		TopK:  []models.LabeledScore{{Label: "emergencia_medica", Score: 1.0}},
	}
	analysis := classify.Result{
		Intent:    intent,
		Sentiment: models.Classification{Label: "NEU"},
		Emotion:   models.Classification{Label: "neutral"},
	}
	if full, err := e.classifier.Classify(ctx, req.Text); err == nil {
		analysis.Sentiment = full.Sentiment
		analysis.Emotion = full.Emotion
		analysis.Entities = full.Entities
	} else {
		slog.Warn("Classification unavailable for forced emergency", "error", err)
	}

	decision := models.FlowDecision{
		Flow:       models.FlowEmergency,
		NextPrompt: "Emergencia detectada. Llamo a tu contacto de emergencia o a servicios de urgencia?",
		Reason:     "gate_emergency",
		Source:     models.SourceGate,
	}

	event := models.EmergencyEvent{
		ID:        uuid.NewString(),
		DeviceID:  req.DeviceID,
		SessionID: req.SessionID,
		Status:    models.EmergencyStatusDetected,
		Reason:    decision.Reason,
	}
	eventID := event.ID
	if err := e.store.CreateEmergencyEvent(event); err != nil {
		slog.Warn("Could not persist forced emergency event", "error", err, "deviceID", req.DeviceID)
		eventID = ""
	}

	return models.ChatResponse{
		Reply:            protocolReply,
		Emergency:        true,
		Flow:             decision.Flow,
		EmergencyEventID: eventID,
		Intent:           analysis.Intent,
		Sentiment:        analysis.Sentiment,
		Emotion:          analysis.Emotion,
		Entities:         analysis.Entities,
		Decoder:          DecoderEmergency,
		Gate:             verdict.Reason,
		FlowSource:       decision.Source,
		FlowReason:       decision.Reason,
		NextPrompt:       decision.NextPrompt,
		ProcessingMS:     time.Since(start).Milliseconds(),
	}
}

// collectAdvisory runs the validator in a goroutine and waits at most
// AdvisoryTimeout for the answer. The extra guard second covers a validator
// that ignores context cancellation.
func (e *Engine) collectAdvisory(ctx context.Context, text string, analysis classify.Result, recent []models.Message) *models.FlowDecision {
	if !e.cfg.AdvisoryEnabled || e.validator == nil {
		return nil
	}

	advisoryCtx, cancel := context.WithTimeout(ctx, e.cfg.AdvisoryTimeout)
	defer cancel()

	ch := make(chan *models.FlowDecision, 1)
	go func() {
		ch <- e.validator.Suggest(advisoryCtx, text, analysis, recent)
	}()

	select {
	case d := <-ch:
		return d
	case <-time.After(e.cfg.AdvisoryTimeout + time.Second):
		slog.Warn("Advisory validator timed out, keeping local decision")
		return nil
	}
}

// persistReminders applies the reminder persistence rules for the turn and
// returns the touched reminder IDs. Failures are logged and leave the reply
// unaffected.
func (e *Engine) persistReminders(req models.ChatRequest, normText string, decision models.FlowDecision, entities []models.Entity) []string {
	targetStatus := ReminderTargetStatus(decision.Reason, normText)

	if targetStatus == models.ReminderStatusCancelled {
		existing, err := e.store.GetLatestReminder(req.DeviceID, req.SessionID)
		if err != nil {
			slog.Warn("Could not load latest reminder for cancel", "error", err, "deviceID", req.DeviceID)
			return nil
		}
		if existing == nil {
			return nil
		}
		if err := e.store.UpdateReminderStatus(existing.ID, targetStatus); err != nil {
			slog.Warn("Could not cancel reminder", "error", err, "id", existing.ID)
			return nil
		}
		return []string{existing.ID}
	}

	candidates := e.extractor.Extract(normText, entities)
	if len(candidates) == 0 {
		candidates = []models.ReminderCandidate{{Title: req.Text}}
	}

	var ids []string
	for _, cand := range candidates {
		title := cand.Title
		if title == "" {
			title = req.Text
		}

		existing, err := e.store.FindSimilarReminder(req.DeviceID, req.SessionID, title, cand.DueAt, e.cfg.DuplicateWindow)
		if err != nil {
			slog.Warn("Could not look up similar reminder", "error", err, "deviceID", req.DeviceID)
			continue
		}

		var keepID string
		if existing != nil {
			if err := e.store.UpdateReminderStatus(existing.ID, targetStatus); err != nil {
				slog.Warn("Could not update reminder status", "error", err, "id", existing.ID)
				continue
			}
			keepID = existing.ID
		} else {
			rem := models.Reminder{
				ID:        uuid.NewString(),
				DeviceID:  req.DeviceID,
				SessionID: req.SessionID,
				Title:     title,
				DueAt:     cand.DueAt,
				Timezone:  cand.Timezone,
				Status:    targetStatus,
			}
			if err := e.store.CreateReminder(rem); err != nil {
				slog.Warn("Could not create reminder", "error", err, "deviceID", req.DeviceID)
				continue
			}
			keepID = rem.ID
		}
		ids = append(ids, keepID)

		if err := e.store.CancelReminderDuplicates(req.DeviceID, title, cand.DueAt, keepID); err != nil {
			slog.Warn("Could not cancel reminder duplicates", "error", err, "deviceID", req.DeviceID)
		}
	}
	return ids
}

// persistEmergency upserts the open emergency event for the turn and fires
// the escalation alert when the event reaches escalated. Returns the event
// ID, or empty on persistence failure.
func (e *Engine) persistEmergency(ctx context.Context, req models.ChatRequest, decision models.FlowDecision, action, contactName, contactPhone string) string {
	targetStatus := EmergencyTargetStatus(decision.Reason)

	var eventID string
	existing, err := e.store.GetLatestOpenEmergency(req.DeviceID, req.SessionID)
	if err != nil {
		slog.Warn("Could not look up open emergency", "error", err, "deviceID", req.DeviceID)
		return ""
	}
	if existing != nil {
		if err := e.store.UpdateEmergencyStatus(existing.ID, targetStatus, action); err != nil {
			slog.Warn("Could not update emergency event", "error", err, "id", existing.ID)
			return ""
		}
		eventID = existing.ID
	} else {
		event := models.EmergencyEvent{
			ID:          uuid.NewString(),
			DeviceID:    req.DeviceID,
			SessionID:   req.SessionID,
			Status:      targetStatus,
			Reason:      decision.Reason,
			Action:      action,
			ContactName: contactName,
		}
		if err := e.store.CreateEmergencyEvent(event); err != nil {
			slog.Warn("Could not persist emergency event", "error", err, "deviceID", req.DeviceID)
			return ""
		}
		eventID = event.ID
	}

	if targetStatus == models.EmergencyStatusEscalated && contactPhone != "" {
		body := fmt.Sprintf("Alerta de emergencia del dispositivo %s. El usuario pidio ayuda.", req.DeviceID)
		if err := e.notifier.SendAlert(ctx, contactPhone, body); err != nil {
			slog.Warn("Could not send escalation alert", "error", err, "to", contactPhone)
		}
	}
	return eventID
}
