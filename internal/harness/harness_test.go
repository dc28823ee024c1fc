package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_AllScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		s, err := LoadScenario(f)
		require.NoError(t, err)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "expectations failed: %v", result.Errors)
		})
	}
}

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
comments:
  - id: c1
    body: "u/chaintip 500 bits"
steps:
  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 1 }, comment: c1 }
  - cycle: 1
expect:
  tips:
    - id: m1
      payment: "paid (1)"
      amount: "1"
    - id: m9
  broadcasts: 2
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, `tip m1 payment: expected "paid (1)", got "amount pending"`)
	assert.Contains(t, joined, "tip m1 amount: expected 1, got 0.0005")
	assert.Contains(t, joined, "tip m9: not found")
	assert.Contains(t, joined, "broadcasts: expected 2, got 0")
}

func TestRun_RemoveTip(t *testing.T) {
	s := mustParse(t, `
name: remove_tip
comments:
  - id: c1
    body: "u/chaintip 500 bits"
steps:
  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 1 }, comment: c1 }
  - cycle: 1
  - remove: m1
  - cycle: 1
expect:
  tips:
    - id: m1
      absent: true
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
	assert.Empty(t, result.Tips)
}

func TestRun_InboxErrorIsTransient(t *testing.T) {
	s := mustParse(t, `
name: inbox_error
steps:
  - inbox_error: "connection reset"
  - cycle: 1
  - inbox_error: unauthorized
  - cycle: 1
  - cycle: 1
`)

	result, err := Run(s)
	require.NoError(t, err)

	want := []TraceEvent{
		{Step: 0, Event: "inbox_error", Detail: "connection reset"},
		{Step: 1, Event: "cycle_failed", Detail: "cycle 1: TRANSIENT"},
		{Step: 2, Event: "inbox_error", Detail: "unauthorized"},
		{Step: 3, Event: "cycle_failed", Detail: "cycle 2: AUTH_FAILED"},
		{Step: 4, Event: "cycle", Detail: "cycle 3: digested 0"},
	}
	assert.Equal(t, want, result.Trace)
}

func TestRun_TiplessPaymentAppliedOnCreation(t *testing.T) {
	s := mustParse(t, `
name: tipless
comments:
  - id: c1
    body: "u/chaintip 500 bits"
steps:
  - chain_tx:
      from: { seed: 8 }
      to:
        - { seed: 1, amount: "0.0005" }
  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 1 }, comment: c1 }
  - cycle: 1
expect:
  tips:
    - id: m1
      payment: "paid (1)"
      received: "0.0005"
  tipless: 0
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
}

func TestRun_DisallowDefaultAndLimit(t *testing.T) {
	s := mustParse(t, `
name: eligibility
config:
  autopay: true
  disallow_default: true
  limit: "0.0001"
comments:
  - id: c1
    body: "u/chaintip"
  - id: c2
    body: "u/chaintip 500 bits"
  - id: c3
    body: "u/chaintip 50 bits"
steps:
  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 1 }, comment: c1 }
  - inbox: { id: m2, kind: tip, user: amy, to: { seed: 2 }, comment: c2 }
  - inbox: { id: m3, kind: tip, user: cal, to: { seed: 3 }, comment: c3 }
  - cycle: 1
  - advance: 2s
  - cycle: 1
expect:
  tips:
    - id: m1
      payment: "autopay disallowed (default amount)"
      default_used: true
    - id: m2
      payment: "autopay-amount-limited"
    - id: m3
      payment: "ready to pay"
`)

	result, err := Run(s)
	require.NoError(t, err)
	require.False(t, result.Pass, "m2 expectation is deliberately misspelled")
	assert.Equal(t, []string{
		`tip m2 payment: expected "autopay-amount-limited", got "autopay amount-limited"`,
	}, result.Errors)
}

func TestRun_BadConfig(t *testing.T) {
	s := mustParse(t, `
name: bad_config
config:
  limit: "lots"
steps:
  - cycle: 1
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "autopay.limit")
}

func TestRun_SeedOutOfRange(t *testing.T) {
	s := mustParse(t, `
name: wallet_seed
steps:
  - inbox: { id: m1, kind: tip, user: bob, to: { seed: 99 } }
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed 99 out of range")
}
