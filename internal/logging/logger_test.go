package logging

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		expected  zerolog.Level
	}{
		{"zero means default", 0, zerolog.InfoLevel},
		{"negative means default", -3, zerolog.InfoLevel},
		{"debug", 10, zerolog.DebugLevel},
		{"below debug threshold", 5, zerolog.DebugLevel},
		{"info", 20, zerolog.InfoLevel},
		{"warn", 30, zerolog.WarnLevel},
		{"error", 40, zerolog.ErrorLevel},
		{"above error threshold", 50, zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LevelFromVerbosity(tt.verbosity)
			if got != tt.expected {
				t.Errorf("LevelFromVerbosity(%d) = %v, want %v", tt.verbosity, got, tt.expected)
			}
		})
	}
}

func TestIsSecretField(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		expected bool
	}{
		{"api key", "api_key", true},
		{"api key header", "X-SMC-API-Key", true},
		{"passphrase", "Passphrase", true},
		{"password", "password", true},
		{"private key", "private_key", true},
		{"nested secret", "smc_secret_key", true},
		{"token field", "access_token", true},
		{"gateway name", "gateway_name", false},
		{"filter", "filter", false},
		{"endpoint address", "address", false},
		{"object type", "object_type", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsSecretField(tt.field)
			if got != tt.expected {
				t.Errorf("IsSecretField(%q) = %v, want %v", tt.field, got, tt.expected)
			}
		})
	}
}

func TestRedactValue(t *testing.T) {
	result := RedactValue("xGb9aPq3vZs8Jw2JGVkeyEXAMPLE")
	if !strings.HasPrefix(result, "[REDACTED:sha256:") {
		t.Errorf("Expected [REDACTED:sha256:...], got %s", result)
	}
	if !strings.HasSuffix(result, "]") {
		t.Errorf("Expected trailing ], got %s", result)
	}

	// Same input should produce same hash
	result2 := RedactValue("xGb9aPq3vZs8Jw2JGVkeyEXAMPLE")
	if result != result2 {
		t.Error("Same input should produce same redacted value")
	}

	// Different input should produce different hash
	result3 := RedactValue("differentSecret")
	if result == result3 {
		t.Error("Different inputs should produce different redacted values")
	}
}

func TestRedactEmptyValue(t *testing.T) {
	result := RedactValue("")
	if result != "" {
		t.Errorf("Empty input should return empty, got %q", result)
	}
}
