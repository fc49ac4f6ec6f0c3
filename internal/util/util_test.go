package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRandomHex(t *testing.T) {
	hex := GenerateRandomHex(16)
	if len(hex) != 16 {
		t.Errorf("expected 16 chars, got %d", len(hex))
	}
	for _, c := range hex {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected character %q in %q", c, hex)
		}
	}
	if GenerateRandomHex(0) != "" {
		t.Error("zero length must yield empty string")
	}
	if GenerateRandomHex(-5) != "" {
		t.Error("negative length must yield empty string")
	}
}

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("turn-", 8)
	if !strings.HasPrefix(id, "turn-") {
		t.Errorf("expected prefix, got %q", id)
	}
	if len(id) != len("turn-")+8 {
		t.Errorf("unexpected length for %q", id)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
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
		{"off", true, false},
		{"", true, true},
		{"garbage", true, true},
		{" true ", false, true},
	}
	for _, tt := range tests {
		t.Setenv("PRACTICA_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("PRACTICA_TEST_BOOL", tt.def); got != tt.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("PRACTICA_TEST_INT", "42")
	if got := ParseIntEnv("PRACTICA_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("PRACTICA_TEST_INT", "not a number")
	if got := ParseIntEnv("PRACTICA_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	t.Setenv("PRACTICA_TEST_INT", "")
	if got := ParseIntEnv("PRACTICA_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7 for empty value, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("PRACTICA_TEST_DUR", "90s")
	if got := ParseDurationEnv("PRACTICA_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("PRACTICA_TEST_DUR", "bogus")
	if got := ParseDurationEnv("PRACTICA_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default, got %v", got)
	}
}
