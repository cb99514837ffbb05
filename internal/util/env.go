// Package util holds small configuration helpers shared by the Amparo
// binaries.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseBoolEnv reads a boolean environment variable, as used for the LLM
// feature toggles (FLOW_USE_LLM, DECODER_USE_OPENAI, GATE_USE_LLM).
// Accepted spellings are true/1/yes/on and false/0/no/off, case-insensitive;
// unset or unrecognized values fall back to def.
func ParseBoolEnv(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		slog.Warn("ParseBoolEnv: unrecognized value, using default", "key", key, "value", raw, "default", def)
		return def
	}
}
