//go:build integration

package dbassert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ExpectedEvent contains expected values for savings event assertions.
// Zero values are not checked, allowing partial matching.
type ExpectedEvent struct {
	Command       string
	Subcommand    string
	RawBytes      int64
	FilteredBytes int64
	TokensSaved   int64
}

// AssertEventFieldCompleteness verifies that all required fields are populated.
func AssertEventFieldCompleteness(t *testing.T, ev SavingsEvent) {
	t.Helper()

	assert.NotEmpty(t, ev.ID, "event ID should not be empty")
	assert.False(t, ev.Timestamp.IsZero(), "event timestamp should not be zero")
	assert.NotEmpty(t, ev.Command, "event command should not be empty")
}

// AssertEventMatches verifies that the actual event matches expected values.
// Only non-zero expected values are checked.
func AssertEventMatches(t *testing.T, expected ExpectedEvent, actual SavingsEvent) {
	t.Helper()

	if expected.Command != "" {
		assert.Equal(t, expected.Command, actual.Command, "command mismatch")
	}
	if expected.Subcommand != "" {
		assert.Equal(t, expected.Subcommand, actual.Subcommand, "subcommand mismatch")
	}
	if expected.RawBytes != 0 {
		assert.Equal(t, expected.RawBytes, actual.RawBytes, "raw bytes mismatch")
	}
	if expected.FilteredBytes != 0 {
		assert.Equal(t, expected.FilteredBytes, actual.FilteredBytes, "filtered bytes mismatch")
	}
	if expected.TokensSaved != 0 {
		assert.Equal(t, expected.TokensSaved, actual.TokensSaved, "tokens saved mismatch")
	}
}

// AssertEventBytesConsistent verifies that filtered output never exceeds the
// raw output it was derived from.
func AssertEventBytesConsistent(t *testing.T, ev SavingsEvent) {
	t.Helper()

	assert.LessOrEqual(t, ev.FilteredBytes, ev.RawBytes,
		"filtered bytes (%d) should not exceed raw bytes (%d)",
		ev.FilteredBytes, ev.RawBytes)
}

// AssertEventHasSavings verifies that the token savings figure is populated.
func AssertEventHasSavings(t *testing.T, ev SavingsEvent) {
	t.Helper()

	assert.Greater(t, ev.TokensSaved, int64(0), "tokens saved should be greater than zero")
}
