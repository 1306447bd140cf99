package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "arbiter/pkg/domain-errors"
)

func TestCompile(t *testing.T) {
	t.Run("accepts boolean expression", func(t *testing.T) {
		c, err := Compile(`facts.income < 100000.0 && facts.age >= 60.0`)
		require.NoError(t, err)
		assert.Equal(t, []string{"age", "income"}, c.Fields)
	})

	t.Run("rejects empty expression", func(t *testing.T) {
		_, err := Compile("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects syntax errors", func(t *testing.T) {
		_, err := Compile(`facts.income <`)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects non-boolean output", func(t *testing.T) {
		_, err := Compile(`"just a string"`)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects unknown variables", func(t *testing.T) {
		_, err := Compile(`applicant.income > 0.0`)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("collects index-form field references", func(t *testing.T) {
		c, err := Compile(`facts["duplicate_flag"] == false`)
		require.NoError(t, err)
		assert.Equal(t, []string{"duplicate_flag"}, c.Fields)
	})

	t.Run("presence tests are not field references", func(t *testing.T) {
		c, err := Compile(`has(facts.spouse_income) ? facts.income > 0.0 : facts.income > 10.0`)
		require.NoError(t, err)
		assert.Equal(t, []string{"income"}, c.Fields)
	})
}

func TestEval(t *testing.T) {
	c, err := Compile(`facts.income < 100000.0 && !facts.duplicate_flag`)
	require.NoError(t, err)

	t.Run("evaluates true", func(t *testing.T) {
		pass, err := c.Eval(map[string]any{"income": 50000.0, "duplicate_flag": false})
		require.NoError(t, err)
		assert.True(t, pass)
	})

	t.Run("evaluates false", func(t *testing.T) {
		pass, err := c.Eval(map[string]any{"income": 50000.0, "duplicate_flag": true})
		require.NoError(t, err)
		assert.False(t, pass)
	})

	t.Run("is deterministic across repeated calls", func(t *testing.T) {
		activation := map[string]any{"income": 99999.0, "duplicate_flag": false}
		first, err := c.Eval(activation)
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			again, err := c.Eval(activation)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("runtime type mismatch surfaces as error not pass", func(t *testing.T) {
		_, err := c.Eval(map[string]any{"income": "fifty thousand", "duplicate_flag": false})
		require.Error(t, err)
	})
}
