package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{" true ", false, true},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, c := range cases {
		t.Setenv("AMPARO_TEST_BOOL", c.value)
		if got := ParseBoolEnv("AMPARO_TEST_BOOL", c.def); got != c.expected {
			t.Errorf("ParseBoolEnv(%q, %t): expected %t, got %t", c.value, c.def, c.expected, got)
		}
	}
}

func TestParseBoolEnvUnset(t *testing.T) {
	t.Setenv("AMPARO_TEST_BOOL", "")
	if !ParseBoolEnv("AMPARO_TEST_BOOL", true) {
		t.Error("expected default true for unset variable")
	}
	if ParseBoolEnv("AMPARO_TEST_BOOL", false) {
		t.Error("expected default false for unset variable")
	}
}
