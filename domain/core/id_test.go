package core

import (
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{"run-123", RunID("run-123"), false},
		{"  run-456 ", RunID("run-456"), false},
		{"", "", true},
		{"   ", "", true},
	}

	for _, test := range tests {
		result, err := ParseRunID(test.input)
		if test.hasError && err == nil {
			t.Errorf("Expected error for input '%s', but got none", test.input)
		}
		if !test.hasError && err != nil {
			t.Errorf("Unexpected error for input '%s': %v", test.input, err)
		}
		if result != test.expected {
			t.Errorf("Expected %s, got %s", test.expected, result)
		}
	}
}

func TestHashSeedIsStable(t *testing.T) {
	a := NewHash([]byte("CCO")).Seed()
	b := NewHash([]byte("CCO")).Seed()
	c := NewHash([]byte("CCN")).Seed()

	if a != b {
		t.Errorf("Expected identical seeds for identical input, got %d and %d", a, b)
	}
	if a == c {
		t.Errorf("Expected different seeds for different input")
	}
	if Hash("zz").Seed() != 0 {
		t.Errorf("Expected malformed hash to seed 0")
	}
}

// TestValidateRunID tests that caller-assigned run IDs must be canonical UUIDs
func TestValidateRunID(t *testing.T) {
	if err := ValidateRunID(NewRunID()); err != nil {
		t.Errorf("Expected generated run ID to validate, got %v", err)
	}

	for _, bad := range []RunID{
		"",
		"run-123",
		"../escaped",
		"0190A5F2-7C3E-7B1A-9D2E-4F6A8B0C1D2E",
		"{0190a5f2-7c3e-7b1a-9d2e-4f6a8b0c1d2e}",
		"urn:uuid:0190a5f2-7c3e-7b1a-9d2e-4f6a8b0c1d2e",
	} {
		if err := ValidateRunID(bad); err == nil {
			t.Errorf("Expected error for run ID %q", bad)
		}
	}
}
