package flow

import "testing"

func TestNormalize_StripsDiacriticsAndCase(t *testing.T) {
	got := Normalize("  Mañana   a las NUEVE  ")
	want := "manana a las nueve"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCleanText_PreservesCase(t *testing.T) {
	got := CleanText("Recuérdame  tomar   Medicina")
	want := "Recuerdame tomar Medicina"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestReminderKeywordMatch(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"quiero un recordatorio para la cita", true},
		{"recordarme tomar la pastilla", true},
		{"necesito anotar algo", true},
		{"hola como estas", false},
		// "cita" must match as a whole word, not inside another word
		{"me gusta la felicitacion", false},
	}
	for _, c := range cases {
		if got := ReminderKeywordMatch(Normalize(c.text)); got != c.want {
			t.Errorf("ReminderKeywordMatch(%q): expected %v, got %v", c.text, c.want, got)
		}
	}
}

func TestIsCancelText(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"cancela eso por favor", true},
		{"olvidalo", true},
		{"no, gracias", true},
		{"quiero una cita", false},
		// "anular" must not fire on words containing it
		{"me gusta granular", false},
	}
	for _, c := range cases {
		if got := IsCancelText(Normalize(c.text)); got != c.want {
			t.Errorf("IsCancelText(%q): expected %v, got %v", c.text, c.want, got)
		}
	}
}

func TestIsConfirmText_WholeWordOnly(t *testing.T) {
	if !IsConfirmText(Normalize("si, dale")) {
		t.Error("expected 'si, dale' to confirm")
	}
	// "si" inside "asi" must not confirm
	if IsConfirmText(Normalize("asi no era")) {
		t.Error("expected 'asi no era' not to confirm")
	}
	if !IsConfirmText(Normalize("de acuerdo")) {
		t.Error("expected 'de acuerdo' to confirm")
	}
}

func TestHasTimeHint(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"a las 9:30", true},
		{"a las 9 am", true},
		{"manana temprano", true},
		{"tomar la pastilla", false},
	}
	for _, c := range cases {
		if got := HasTimeHint(Normalize(c.text)); got != c.want {
			t.Errorf("HasTimeHint(%q): expected %v, got %v", c.text, c.want, got)
		}
	}
}

func TestExtractReminderSlots(t *testing.T) {
	cases := []struct {
		text       string
		hasTime    bool
		hasContent bool
	}{
		{"recuerdame tomar la medicina manana a las 9am", true, true},
		{"manana 9am", true, false},
		// Reminder trigger words are not content: only [la, medica] remain.
		{"anotar la cita medica", false, false},
		{"necesito un recordatorio", false, false},
		// Temporal words do count as content words.
		{"recordar tomar pastilla manana tarde", true, true},
	}
	for _, c := range cases {
		s := ExtractReminderSlots(Normalize(c.text))
		if s.HasTime != c.hasTime || s.HasContent != c.hasContent {
			t.Errorf("ExtractReminderSlots(%q): expected (time=%v content=%v), got (time=%v content=%v)",
				c.text, c.hasTime, c.hasContent, s.HasTime, s.HasContent)
		}
	}
}
