package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: unlock-recall
description: recognition past threshold unlocks the recall card
config: |
  stages: vocab: [
    {index: 0, templates: ["recognition"], threshold: 2.5},
    {index: 1, templates: ["recall"], threshold: 2.5},
  ]
collection:
  notetypes:
    - name: vocab
      fields: [Expression, Links]
      templates: [recognition, recall]
  notes:
    - id: 1
      type: vocab
      fields:
        Expression: "北口"
  cards:
    - id: 101
      note: 1
      ord: 0
      stability: 6.0
    - id: 102
      note: 1
      ord: 1
      queue: suspended
expect:
  unsuspended: [102]
`

const failingScenario = `
name: wrong-expectation
description: expects a suspension the pass never plans
config: |
  stages: vocab: [
    {index: 0, templates: ["recognition"], threshold: 2.5},
  ]
collection:
  notetypes:
    - name: vocab
      fields: [Expression]
      templates: [recognition]
  notes:
    - id: 1
      type: vocab
      fields:
        Expression: "北口"
  cards:
    - id: 101
      note: 1
      ord: 0
      stability: 6.0
expect:
  suspended: [101]
`

// writeScenario writes one scenario file into dir.
func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScenarioNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestScenarioPassing(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "unlock-recall.yaml", passingScenario)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "✓ unlock-recall")
	assert.Contains(t, output, "1 passed, 0 failed, 1 total")
	assert.Contains(t, output, "✓ All scenarios passed")
}

func TestScenarioFailing(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "wrong-expectation.yaml", failingScenario)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 scenario(s) failed")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	output := buf.String()
	assert.Contains(t, output, "✗ wrong-expectation")
	assert.Contains(t, output, "0 passed, 1 failed, 1 total")
}

func TestScenarioLoadError(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "broken.yaml", "name: [unbalanced")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Load error")
}

func TestScenarioGoldenUpdate(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "unlock-recall.yaml", passingScenario)

	// First run regenerates the golden file
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--update"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "golden updated")

	goldenPath := filepath.Join(tmpDir, "golden", "unlock-recall.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), "unsuspend 102")

	// Second run compares against it and passes
	buf.Reset()
	rerun := NewScenarioCommand(rootOpts)
	rerun.SetOut(buf)
	rerun.SetArgs([]string{tmpDir})

	err = rerun.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestScenarioGoldenMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "unlock-recall.yaml", passingScenario)

	goldenDir := filepath.Join(tmpDir, "golden")
	require.NoError(t, os.MkdirAll(goldenDir, 0755))
	stale := []byte("stale golden content\n")
	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "unlock-recall.golden"), stale, 0644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "does not match golden file")
}

func TestScenarioFilter(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "unlock-recall.yaml", passingScenario)
	writeScenario(t, tmpDir, "wrong-expectation.yaml", failingScenario)

	// The filter matches file names, so the failing scenario never runs
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--filter", "unlock-*"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")
}

func TestScenarioJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeScenario(t, tmpDir, "unlock-recall.yaml", passingScenario)
	writeScenario(t, tmpDir, "wrong-expectation.yaml", failingScenario)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewScenarioCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var summary ScenarioSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
}
