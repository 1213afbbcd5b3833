package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jdziat/jobsuite/pkg/core"
)

func TestValidateJobID_Valid(t *testing.T) {
	validIDs := []string{
		"extract",
		"nightly/extract",
		"nightly/load.orders",
		"step_1",
		"2024-report",
		"a/b/c",
	}

	for _, id := range validIDs {
		err := ValidateJobID(id)
		assert.NoError(t, err, "Expected %q to be valid", id)
	}
}

func TestValidateJobID_Invalid(t *testing.T) {
	invalidIDs := []string{
		"",                       // empty
		"-task",                  // starts with hyphen
		"task with spaces",       // contains spaces
		"task@email",             // contains special char
		"/root",                  // leading slash
		"root/",                  // trailing slash
		"a//b",                   // empty segment
		"a/../b",                 // parent segment
		strings.Repeat("a", 300), // too long
	}

	for _, id := range invalidIDs {
		err := ValidateJobID(id)
		assert.Error(t, err, "Expected %q to be invalid", id)
	}
}

func TestValidateJobID_TooLongError(t *testing.T) {
	err := ValidateJobID(strings.Repeat("a", MaxJobIDLength+1))
	assert.ErrorIs(t, err, core.ErrJobIDTooLong)
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, ValidateNamespace("nightly"))
	assert.NoError(t, ValidateNamespace("etl.v2"))

	assert.ErrorIs(t, ValidateNamespace(""), core.ErrInvalidNamespace)
	assert.ErrorIs(t, ValidateNamespace("a/b"), core.ErrInvalidNamespace)
	assert.ErrorIs(t, ValidateNamespace("1abc"), core.ErrInvalidNamespace)
	assert.ErrorIs(t, ValidateNamespace(strings.Repeat("n", 200)), core.ErrNamespaceTooLong)
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "", SanitizeErrorMessage(""))
	assert.Equal(t, "line1\nline2", SanitizeErrorMessage("line1\nline2"))
	assert.Equal(t, "nullbyte", SanitizeErrorMessage("null\x00byte"))

	long := strings.Repeat("x", MaxErrorMessageLength+50)
	got := SanitizeErrorMessage(long)
	assert.Equal(t, MaxErrorMessageLength, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestSanitizeNote(t *testing.T) {
	got := SanitizeNote(strings.Repeat("n", MaxNoteLength+1))
	assert.Equal(t, MaxNoteLength, len(got))
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 3, ClampConcurrency(0, 3), "zero means one worker per child")
	assert.Equal(t, 2, ClampConcurrency(2, 5))
	assert.Equal(t, 5, ClampConcurrency(10, 5), "never more workers than children")
	assert.Equal(t, 1, ClampConcurrency(-1, 0))
	assert.Equal(t, MaxConcurrency, ClampConcurrency(5000, 5000))
}
