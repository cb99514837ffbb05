// Package flow implements the conversational decision engine: it routes a
// classified utterance into a flow, refines emergency and reminder sub-flows,
// and generates the assistant reply.
package flow

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases the text, strips diacritics and collapses whitespace.
// All keyword matching in this package runs on normalized text.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	stripped, _, err := transform.String(diacriticStripper, lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// CleanText strips diacritics and collapses whitespace but preserves case.
// The API applies it to incoming text before storage and processing.
func CleanText(text string) string {
	trimmed := strings.TrimSpace(text)
	stripped, _, err := transform.String(diacriticStripper, trimmed)
	if err != nil {
		stripped = trimmed
	}
	return strings.Join(strings.Fields(stripped), " ")
}

// reminderKeywords trigger the reminder flow even when the classifier
// disagrees with low confidence.
var reminderKeywords = []string{"recordatorio", "recordar", "anotar", "cita", "alarma", "recordarme"}

var cancelPhrases = []string{"cancelar", "cancela", "olvida", "olvidalo", "anular", "no gracias", "no, gracias"}

var confirmPhrases = []string{"confirmo", "confirma", "confirmar", "si", "dale", "ok", "okey", "vale", "de acuerdo"}

var temporalKeywords = []string{"manana", "hoy", "tarde", "noche", "am", "pm", "minuto", "hora", "horas"}

var (
	clockTimeRe  = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	meridiemRe   = regexp.MustCompile(`\b\d{1,2}\s*(am|pm)\b`)
	wordBoundsRe = regexp.MustCompile(`[^a-z0-9ñ]+`)
)

// containsWord reports whether w occurs as a whole word in normalized text.
// Substring matching is wrong for short words like "si" or "ok".
func containsWord(text, w string) bool {
	for _, tok := range wordBoundsRe.Split(text, -1) {
		if tok == w {
			return true
		}
	}
	return false
}

// containsAnyPhrase matches multi-word phrases by substring and single words
// by whole-word match.
func containsAnyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.ContainsRune(p, ' ') || strings.ContainsRune(p, ',') {
			if strings.Contains(text, p) {
				return true
			}
		} else if containsWord(text, p) {
			return true
		}
	}
	return false
}

// ReminderKeywordMatch reports whether the normalized text carries a reminder
// trigger word.
func ReminderKeywordMatch(text string) bool {
	return containsAnyPhrase(text, reminderKeywords)
}

// IsCancelText reports whether the normalized text reads as a cancellation.
func IsCancelText(text string) bool {
	return containsAnyPhrase(text, cancelPhrases)
}

// IsConfirmText reports whether the normalized text reads as a confirmation.
func IsConfirmText(text string) bool {
	return containsAnyPhrase(text, confirmPhrases)
}

// HasTimeHint reports whether the normalized text mentions a time: a clock
// time, an am/pm hour, or a temporal keyword.
func HasTimeHint(text string) bool {
	if clockTimeRe.MatchString(text) || meridiemRe.MatchString(text) {
		return true
	}
	return containsAnyPhrase(text, temporalKeywords)
}

// HasReminderContent reports whether the text carries enough words outside
// the reminder trigger set to describe what the reminder is about. "necesito
// un recordatorio" alone is not content.
func HasReminderContent(text string) bool {
	count := 0
	for _, tok := range strings.Fields(strings.ReplaceAll(text, ",", " ")) {
		if isReminderKeyword(tok) {
			continue
		}
		count++
	}
	return count >= 4
}

func isReminderKeyword(tok string) bool {
	for _, k := range reminderKeywords {
		if tok == k {
			return true
		}
	}
	return false
}

// ReminderSlots describes which reminder slots the utterance fills.
type ReminderSlots struct {
	HasTime    bool
	HasContent bool
}

// ExtractReminderSlots inspects the normalized text for the time and content
// slots of a reminder.
func ExtractReminderSlots(text string) ReminderSlots {
	return ReminderSlots{
		HasTime:    HasTimeHint(text),
		HasContent: HasReminderContent(text),
	}
}
