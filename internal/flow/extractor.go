package flow

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/amparo-ai/amparo/internal/models"
)

var (
	connectorRe    = regexp.MustCompile(`\b(y|ademas|tambien)\b|[;,]`)
	meridiemTimeRe = regexp.MustCompile(`\b\d{1,2}\s*(?:am|pm)\b`)
	meridiemWordRe = regexp.MustCompile(`\b(?:am|pm)\b`)
	leadingVerbRe  = regexp.MustCompile(`^(recuerda|recuerdame|recordar|recordarme|recordatorio|necesito|quiero|favor|debo|pon|configura)\s+`)
)

// temporalTranslations maps Spanish temporal phrases to English for the date
// parser. Longer phrases come first so "por la manana" is not eaten by the
// bare "manana" rule.
var temporalTranslations = []struct{ es, en string }{
	{"pasado manana", "day after tomorrow"},
	{"por la manana", "this morning"},
	{"por la tarde", "this afternoon"},
	{"por la noche", "tonight"},
	{"esta manana", "this morning"},
	{"esta tarde", "this afternoon"},
	{"esta noche", "tonight"},
	{"manana", "tomorrow"},
	{"hoy", "today"},
	{"mediodia", "noon"},
	{"medianoche", "midnight"},
	{"a las", "at"},
	{"a la", "at"},
	{"en", "in"},
	{"minutos", "minutes"},
	{"minuto", "minute"},
	{"horas", "hours"},
	{"hora", "hour"},
	{"dias", "days"},
	{"dia", "day"},
	{"semanas", "weeks"},
	{"semana", "week"},
	{"lunes", "monday"},
	{"martes", "tuesday"},
	{"miercoles", "wednesday"},
	{"jueves", "thursday"},
	{"viernes", "friday"},
	{"sabado", "saturday"},
	{"domingo", "sunday"},
}

// Extractor pulls reminder candidates (title, due time) out of an utterance
// using the classifier's entities, time regexes and a natural date parser.
type Extractor struct {
	parser   *when.Parser
	loc      *time.Location
	timezone string
}

// NewExtractor builds an Extractor resolving relative dates in the given
// IANA timezone. An unknown timezone falls back to UTC.
func NewExtractor(timezone string) *Extractor {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		slog.Warn("Unknown timezone, using UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}
	return &Extractor{parser: w, loc: loc, timezone: timezone}
}

// Extract splits the normalized text into reminder candidates. The text is
// segmented on connector words only when it carries more than one time or
// date entity; otherwise it is a single candidate.
func (e *Extractor) Extract(normText string, entities []models.Entity) []models.ReminderCandidate {
	now := time.Now().In(e.loc)
	return e.extractAt(normText, entities, now)
}

func (e *Extractor) extractAt(normText string, entities []models.Entity, base time.Time) []models.ReminderCandidate {
	var temporalEntities []models.Entity
	for _, ent := range entities {
		t := strings.ToLower(ent.Type)
		if t == "time" || t == "date" {
			temporalEntities = append(temporalEntities, ent)
		}
	}

	segments := []string{normText}
	if len(temporalEntities) > 1 {
		segments = splitSegments(normText)
	}

	var items []models.ReminderCandidate
	for _, seg := range segments {
		timeTokens := extractTimeTokens(seg)
		var segEntities []models.Entity
		for _, ent := range temporalEntities {
			if ent.Value != "" && strings.Contains(seg, Normalize(ent.Value)) {
				segEntities = append(segEntities, ent)
			}
		}

		hint := seg
		if len(timeTokens) > 0 {
			hint = timeTokens[0]
		} else if len(segEntities) > 0 {
			hint = Normalize(segEntities[0].Value)
		}

		dueAt := e.parseDue(seg, hint, base)

		title := seg
		for _, tok := range timeTokens {
			title = strings.ReplaceAll(title, tok, "")
		}
		for _, ent := range segEntities {
			title = strings.ReplaceAll(title, Normalize(ent.Value), "")
		}
		title = meridiemWordRe.ReplaceAllString(title, "")
		title = stripTemporalWords(title)
		title = leadingVerbRe.ReplaceAllString(strings.TrimSpace(title), "")
		title = strings.Trim(strings.Join(strings.Fields(title), " "), " ,.;")
		if title == "" {
			title = seg
		}

		items = append(items, models.ReminderCandidate{Title: title, DueAt: dueAt, Timezone: e.timezone})
	}
	return items
}

// parseDue parses the whole segment first so date and time words combine,
// then falls back to the bare time hint. Times already past are pushed a day
// forward.
func (e *Extractor) parseDue(seg, hint string, base time.Time) *time.Time {
	for _, candidate := range []string{translateTemporal(seg), translateTemporal(hint)} {
		r, err := e.parser.Parse(candidate, base)
		if err != nil || r == nil {
			continue
		}
		t := r.Time
		if t.Before(base) {
			t = t.Add(24 * time.Hour)
		}
		return &t
	}
	return nil
}

func splitSegments(text string) []string {
	var segs []string
	for _, s := range connectorRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) == 0 {
		return []string{text}
	}
	return segs
}

func extractTimeTokens(text string) []string {
	tokens := clockTimeRe.FindAllString(text, -1)
	tokens = append(tokens, meridiemTimeRe.FindAllString(text, -1)...)
	return tokens
}

func translateTemporal(text string) string {
	for _, tr := range temporalTranslations {
		text = replaceWholeWords(text, tr.es, tr.en)
	}
	return text
}

var stripWords = []string{"manana", "hoy", "noche", "tarde", "mediodia", "medianoche", "a las", "a la"}

func stripTemporalWords(text string) string {
	for _, w := range stripWords {
		text = replaceWholeWords(text, w, "")
	}
	return text
}

// replaceWholeWords substitutes phrase occurrences bounded by non-letters so
// "en" never rewrites the middle of a word.
func replaceWholeWords(text, phrase, repl string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`)
	return re.ReplaceAllString(text, repl)
}
