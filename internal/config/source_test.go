package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gating.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestFileSourceReadsFile(t *testing.T) {
	path := writeConfig(t, `
		gating: {
			stages: vocab: [{index: 0, templates: ["recognition"], threshold: 3.5}]
		}
	`)

	src := NewFileSource(path)
	cfg, err := src.GatingConfig(context.Background())
	require.NoError(t, err)

	require.Len(t, cfg.Stages["vocab"], 1)
	assert.Equal(t, 3.5, cfg.Stages["vocab"][0].Threshold)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "absent.cue"))

	_, err := src.GatingConfig(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

// Edits must take effect on the next pass without a restart.
func TestFileSourceRereadsPerCall(t *testing.T) {
	path := writeConfig(t, `stages: vocab: [{index: 0, templates: ["recognition"], threshold: 3.5}]`)
	src := NewFileSource(path)

	cfg, err := src.GatingConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.5, cfg.Stages["vocab"][0].Threshold)

	updated := `stages: vocab: [{index: 0, templates: ["recognition"], threshold: 9.0}]`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	cfg, err = src.GatingConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9.0, cfg.Stages["vocab"][0].Threshold)
}

func TestParseTopLevel(t *testing.T) {
	cfg, err := Parse(`sticky_unlock: false`)
	require.NoError(t, err)
	assert.False(t, cfg.StickyUnlock)
}

func TestParseNestedRoot(t *testing.T) {
	cfg, err := Parse(`gating: sticky_unlock: false`)
	require.NoError(t, err)
	assert.False(t, cfg.StickyUnlock)
}

func TestParseInvalidSyntax(t *testing.T) {
	_, err := Parse(`stages: [`)
	require.Error(t, err)
}

func TestParseValidationFailure(t *testing.T) {
	_, err := Parse(`
		apply_chunk_size: 0
		family: {note_types: ["vocab"]}
	`)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	got := codes(verrs)
	assert.Contains(t, got, ErrApplyChunkSize)
	assert.Contains(t, got, ErrFamilyField)
	assert.Contains(t, got, ErrFamilyUnstagedType)
}
