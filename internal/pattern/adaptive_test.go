package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdaptivePattern(t *testing.T) {
	t.Parallel()

	t.Run("phone example generalizes digits and parens", func(t *testing.T) {
		t.Parallel()
		p := NewAdaptivePattern("(305) 555-1234")
		assert.True(t, p.Features.HasDigits)
		assert.True(t, p.Features.HasParens)
		require.Len(t, p.Variants, 4)
		assert.True(t, p.MatchString("call 305 555-1234 today"))
		assert.True(t, p.MatchString("call (786) 444-9876 today"))
		assert.False(t, p.MatchString("call 55-12 today"))
	})

	t.Run("whitespace flexible and case insensitive", func(t *testing.T) {
		t.Parallel()
		p := NewAdaptivePattern("Intensive Outpatient")
		assert.False(t, p.Features.HasDigits)
		assert.Len(t, p.Variants, 2)
		assert.True(t, p.MatchString("our intensive   outpatient track"))
	})

	t.Run("single word has one variant", func(t *testing.T) {
		t.Parallel()
		p := NewAdaptivePattern("Aetna")
		assert.Equal(t, []string{"Aetna"}, p.Variants)
		assert.Len(t, p.FindAllIndex("Aetna, aetna and AETNA"), 3)
	})

	t.Run("empty input matches nothing", func(t *testing.T) {
		t.Parallel()
		p := NewAdaptivePattern("   ")
		assert.Equal(t, Features{}, p.Features)
		assert.Empty(t, p.Variants)
		assert.False(t, p.MatchString("anything"))
		assert.Nil(t, p.FindAllIndex("anything"))
		assert.Equal(t, "", p.String())
	})

	t.Run("regex metacharacters are escaped", func(t *testing.T) {
		t.Parallel()
		p := NewAdaptivePattern("CARF [accredited] *")
		assert.True(t, p.MatchString("we are CARF [accredited] * since 2010"))
		assert.False(t, p.MatchString("CARF a *"))
	})

	t.Run("separators detected", func(t *testing.T) {
		t.Parallel()
		assert.True(t, NewAdaptivePattern("Aetna, Cigna").Features.HasSeparators)
		assert.True(t, NewAdaptivePattern("detox and residential").Features.HasSeparators)
		assert.False(t, NewAdaptivePattern("Residential").Features.HasSeparators)
	})
}

func TestKeywords(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"call", "admissions", "team"}, Keywords("Call our admissions team, call to us"))
	assert.Empty(t, Keywords("a an of to"))
}
