// Package models defines API request/response structures for Amparo.
package models

// ChatRequest is the body of POST /chat. All three fields are required:
// device_id is the persistent device identifier, session_id the ephemeral
// chat session started when the user opens the chat screen.
type ChatRequest struct {
	Text      string `json:"text"`
	DeviceID  string `json:"device_id"`
	SessionID string `json:"session_id"`
}

// Validate checks the required chat request fields.
func (r *ChatRequest) Validate() error {
	if r.Text == "" {
		return ErrEmptyText
	}
	if r.DeviceID == "" {
		return ErrEmptyDeviceID
	}
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	return nil
}

// ChatResponse is the turn result returned to the frontend.
//
// Critical fields for the frontend: Reply (shown and spoken via TTS),
// Emergency (triggers the visual emergency alert), Flow and
// EmergencyEventID. The classifier outputs enrich the UI; gate/flow_source/
// flow_reason/next_prompt are debug and analytics fields.
type ChatResponse struct {
	Reply            string `json:"reply"`
	Emergency        bool   `json:"emergency"`
	Flow             Flow   `json:"flow,omitempty"`
	EmergencyEventID string `json:"emergency_event_id,omitempty"`

	Intent    Classification `json:"intent"`
	Sentiment Classification `json:"sentiment"`
	Emotion   Classification `json:"emotion"`
	Entities  []Entity       `json:"entities"`

	Decoder      string         `json:"decoder"`
	Gate         string         `json:"gate"`
	FlowSource   DecisionSource `json:"flow_source,omitempty"`
	FlowReason   string         `json:"flow_reason,omitempty"`
	ReminderIDs  []string       `json:"reminder_ids,omitempty"`
	NextPrompt   string         `json:"next_prompt,omitempty"`
	ProcessingMS int64          `json:"processing_ms"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed operation.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  APIStatus   `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with a result.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
