package core

import (
	"errors"
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

	if len(ids) != numIDs {
		t.Errorf("Expected %d unique IDs, got %d", numIDs, len(ids))
	}
}

// TestParseRunID tests run ID parsing
func TestParseRunID(t *testing.T) {
	valid := NewRunID().String()
	tests := []struct {
		input    string
		expected RunID
		hasError bool
	}{
		{valid, RunID(valid), false},
		{"", "", true},
		{"   ", "", true},
		{"run-123", "", true},
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

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		base  error
	}{
		{"insufficient", NewInsufficientDataError("too few cells", 1, 2), IsDataError, ErrInsufficientData},
		{"malformed", NewMalformedDataError("record %d has %d levels", 3, 1), IsDataError, ErrMalformedData},
		{"rank", &RankDeficientWarning{Rank: 3, Columns: 4}, IsRankDeficient, ErrRankDeficient},
		{"config", NewConfigurationError("kappa", "must be >= 0"), IsConfigurationError, ErrConfiguration},
		{"guard", &ComplexityGuardError{Candidates: 40, Limit: 20, Suggestion: "greedy"}, IsComplexityGuard, ErrComplexityGuard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("helper did not recognise %v", tt.err)
			}
			if !errors.Is(tt.err, tt.base) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.base)
			}
			if tt.err.Error() == "" {
				t.Error("empty error message")
			}
		})
	}
}
