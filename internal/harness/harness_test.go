package harness

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_GoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "golden files are keyed by scenario name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/send_and_reply.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	a, err := MarshalSnapshot(scenario.Name, first)
	require.NoError(t, err)

	for range 3 {
		again, err := Run(scenario)
		require.NoError(t, err)
		b, err := MarshalSnapshot(scenario.Name, again)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}

func TestRun_StopsEverySession(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	scenario, err := LoadScenario("testdata/scenarios/clear_history.yaml")
	require.NoError(t, err)
	_, err = Run(scenario)
	require.NoError(t, err)
}

func TestRun_ReportsUnexpectedStepError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: early
description: actions before bootstrap are refused
clients: [alice]
steps:
  - { do: send, client: alice, text: too soon }
assertions:
  - { type: log, client: alice, ids: [] }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "history is still loading")
	assert.Equal(t, "history is still loading", result.Trace[1].Error)
}

func TestRun_ReportsMissingExpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: no_error
description: a step that succeeds fails its expectation
clients: [alice]
steps:
  - do: bootstrap
  - { do: send, client: alice, text: fine, expect_error: refused }
assertions:
  - { type: log, client: alice, ids: [alice-1] }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], `expected error containing "refused", got none`)
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong
description: the log assertion names the wrong ids
clients: [alice, bob]
steps:
  - do: bootstrap
  - { do: send, client: alice, text: one }
assertions:
  - { type: log, client: bob, ids: [bob-1] }
  - { type: status, client: bob, status: Disconnected }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "Assertion failed: log")
	assert.Contains(t, result.Errors[1], `Actual: "Connected"`)
}

func TestRun_BootstrapTimeoutOverride(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: short_timeout
description: the bootstrap step advances by the configured timeout
clients: [alice]
bootstrap_timeout: 1s
steps:
  - do: bootstrap
  - { do: send, client: alice, text: hi }
assertions:
  - { type: log, client: alice, ids: [alice-1] }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "1s", result.Trace[1].At)
}

func TestRun_LeftClientRefusesActions(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: left
description: a client that left cannot act
clients: [alice]
steps:
  - do: bootstrap
  - { do: leave, client: alice }
  - { do: send, client: alice, text: ghost, expect_error: session stopped }
assertions:
  - { type: status, client: alice, status: Disconnected }
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
