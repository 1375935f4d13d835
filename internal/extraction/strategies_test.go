package extraction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

const sampleYAML = `
extraction:
  default_strategy: standard
  defaults:
    confidence_threshold: 0.6
    attempt_timeout: 20s
  strategies:
    standard:
      providers: [heuristic, openai, anthropic]
    scanned:
      confidence_threshold: 0.75
      attempt_timeout: 45s
      formats: [image]
      providers: [anthropic, openai]
    local:
      confidence_threshold: 0
      formats: [text, pdf]
      providers: [heuristic]
  pricing:
    openai: {input: "0.15", output: "0.60"}
    anthropic: {input: "0.80", output: "4.00", per_call: "0.0001"}
`

func TestParseStrategies_AppliesDefaults(t *testing.T) {
	s, err := ParseStrategies([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "scanned", "standard"}, s.Names())

	st, err := s.Resolve("standard", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, st.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 20*time.Second, st.AttemptTimeout)
	assert.Equal(t, []string{"heuristic", "openai", "anthropic"}, st.Providers)

	st, err = s.Resolve("scanned", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.75, st.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 45*time.Second, st.AttemptTimeout)
	assert.Equal(t, []string{"IMAGE"}, st.Formats)

	st, err = s.Resolve("local", "")
	require.NoError(t, err)
	assert.Zero(t, st.ConfidenceThreshold)

	assert.True(t, s.Price("anthropic").PerCall.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, s.Price("unknown").Input.IsZero())
}

func TestResolve_Order(t *testing.T) {
	s, err := ParseStrategies([]byte(sampleYAML))
	require.NoError(t, err)

	st, err := s.Resolve("", "image")
	require.NoError(t, err)
	assert.Equal(t, "scanned", st.Name)

	st, err = s.Resolve("", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "local", st.Name)

	st, err = s.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, "standard", st.Name)

	st, err = s.Resolve("standard", "image")
	require.NoError(t, err)
	assert.Equal(t, "standard", st.Name)

	_, err = s.Resolve("nope", "")
	require.Error(t, err)
	assert.Equal(t, common.CodeValidation, common.KindOf(err))
}

func TestParseStrategies_BadInput(t *testing.T) {
	_, err := ParseStrategies([]byte("extraction: [unclosed"))
	require.Error(t, err)

	_, err = ParseStrategies([]byte("extraction:\n  strategies:\n    s:\n      attempt_timeout: soon\n      providers: [a]\n"))
	require.Error(t, err)

	_, err = ParseStrategies([]byte("extraction:\n  pricing:\n    a: {input: cheap}\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	reg, err := NewRegistry(&fakeProvider{name: "heuristic"}, &fakeProvider{name: "openai"})
	require.NoError(t, err)

	s, err := ParseStrategies([]byte(sampleYAML))
	require.NoError(t, err)
	err = s.Validate(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic")

	require.NoError(t, reg.Register(&fakeProvider{name: "anthropic"}))
	require.NoError(t, s.Validate(reg))

	bad := NewStrategies("x", []Strategy{{Name: "x", ConfidenceThreshold: 1.2, Providers: []string{"openai"}}}, nil)
	require.Error(t, bad.Validate(reg))

	empty := NewStrategies("x", []Strategy{{Name: "x", ConfidenceThreshold: 0.5}}, nil)
	require.Error(t, empty.Validate(reg))

	for _, d := range []string{"0s", "-5s"} {
		zero, err := ParseStrategies([]byte("extraction:\n  strategies:\n    s:\n      attempt_timeout: " + d + "\n      providers: [openai]\n"))
		require.NoError(t, err)
		err = zero.Validate(reg)
		require.Error(t, err, d)
		assert.Contains(t, err.Error(), "attempt_timeout")
	}
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(&fakeProvider{name: "b"}, &fakeProvider{name: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reg.List())

	_, ok := reg.Get("a")
	assert.True(t, ok)
	require.Error(t, reg.Register(&fakeProvider{name: "a"}))
	require.Error(t, reg.Register(&fakeProvider{}))
}

func TestPrice_Cost(t *testing.T) {
	p := Price{Input: decimal.RequireFromString("3"), Output: decimal.RequireFromString("15")}
	got := p.Cost(Usage{Calls: 2, InputTokens: 1000, OutputTokens: 100})
	assert.Equal(t, "0.0045", got.String())
}
