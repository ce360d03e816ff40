package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamadera/torii/internal/srs"
)

func TestPlanMissingFlags(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewPlanCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestPlanLeavesCollectionUntouched(t *testing.T) {
	configPath := writeConfig(t, validConfig)
	dbPath := seedVocabCollection(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewPlanCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", configPath, "--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "unsuspend 102")
	assert.Contains(t, output, "planned: suspended=0 unsuspended=1")

	// The plan is computed but never applied
	queues := queueStates(t, dbPath, 101, 102)
	assert.Equal(t, srs.QueueActive, queues[101])
	assert.Equal(t, srs.QueueSuspended, queues[102])
}

func TestPlanJSON(t *testing.T) {
	configPath := writeConfig(t, validConfig)
	dbPath := seedVocabCollection(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewPlanCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", configPath, "--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.PassToken)
}

func TestPlanInvalidConfig(t *testing.T) {
	configPath := writeConfig(t, `stages: vocab: [`)
	dbPath := seedVocabCollection(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewPlanCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", configPath, "--db", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
