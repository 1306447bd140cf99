package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "arbiter/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSchemeID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDecisionID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseApplicantID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseRuleID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RuleID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between id
// kinds. This is a compile-time check - if this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	schemeID := SchemeID(uuid.New())
	ruleID := RuleID(uuid.New())

	// var _ SchemeID = ruleID   // compile error
	assert.NotEqual(t, schemeID.String(), ruleID.String())
	assert.False(t, schemeID.IsNil())
	assert.False(t, ruleID.IsNil())
}
