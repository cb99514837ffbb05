package flow

import "time"

// Defaults for the decision engine configuration.
const (
	DefaultTrustThreshold       = 0.6
	DefaultKeywordOverrideBelow = 0.7
	DefaultDuplicateWindow      = 24 * time.Hour
	DefaultAdvisoryTimeout      = 5 * time.Second
	DefaultHistoryLimit         = 20
	DefaultValidatorTurns       = 5
	DefaultDecoderTurns         = 10
	DefaultTimezone             = "America/Mexico_City"
)

// Config carries the tunables of the decision engine.
type Config struct {
	// AdvisoryEnabled turns on the LLM validator alongside the local policy.
	AdvisoryEnabled bool
	// TrustThreshold is the classifier score above which a label is trusted.
	TrustThreshold float64
	// KeywordOverrideBelow is the score below which reminder keywords win
	// over the classifier label.
	KeywordOverrideBelow float64
	// DuplicateWindow bounds the due-time distance for reminder dedup.
	DuplicateWindow time.Duration
	// AdvisoryTimeout caps how long the pipeline waits for the validator.
	AdvisoryTimeout time.Duration
	// Timezone is the IANA zone used to resolve relative dates.
	Timezone string
	// HistoryLimit caps the dialog turns fetched per request.
	HistoryLimit int
	// ValidatorContextTurns caps the turns shown to the validator.
	ValidatorContextTurns int
	// DecoderContextTurns caps the turns shown to the reply generator.
	DecoderContextTurns int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		TrustThreshold:        DefaultTrustThreshold,
		KeywordOverrideBelow:  DefaultKeywordOverrideBelow,
		DuplicateWindow:       DefaultDuplicateWindow,
		AdvisoryTimeout:       DefaultAdvisoryTimeout,
		Timezone:              DefaultTimezone,
		HistoryLimit:          DefaultHistoryLimit,
		ValidatorContextTurns: DefaultValidatorTurns,
		DecoderContextTurns:   DefaultDecoderTurns,
	}
}
