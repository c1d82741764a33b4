package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DuckyOnQuack-999/Melty-Beta/internal/config"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.ChunkSize)
	assert.Equal(t, config.FormatText, cfg.Format)
	assert.False(t, cfg.Autocommit)
	require.NoError(t, cfg.Validate())
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{"-C", "/tmp/repo", "-a", "-m", "Fix it", "--chunk-size=8", "--format", "html", "--nvim", "--no-tui", "--debug"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/repo", cfg.Root)
	assert.True(t, cfg.Autocommit)
	assert.Equal(t, "Fix it", cfg.Message)
	assert.Equal(t, 8, cfg.ChunkSize)
	assert.Equal(t, "html", cfg.Format)
	assert.True(t, cfg.Nvim)
	assert.True(t, cfg.NoTUI)
	assert.True(t, cfg.Debug)
	assert.False(t, cfg.DryRun)

	cfg, err = Parse([]string{"--dry-run"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestParseErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := Parse([]string{"--chat", "--autocommit"}, &out)
	assert.Error(t, err)

	_, err = Parse([]string{"-n", "-a"}, &out)
	assert.Error(t, err)

	_, err = Parse([]string{"--bogus"}, &out)
	assert.Error(t, err)

	_, err = Parse([]string{"stray"}, &out)
	assert.Error(t, err)
}

func TestMergeFlagsWin(t *testing.T) {
	cfg, err := Parse([]string{"--format", "markdown"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg.Merge(&config.Config{Autocommit: true, ChunkSize: 32, Format: config.FormatHTML, Debug: true})
	assert.True(t, cfg.Autocommit)
	assert.Equal(t, 32, cfg.ChunkSize)
	assert.Equal(t, config.FormatMarkdown, cfg.Format)
	assert.True(t, cfg.Debug)
}

func TestMergeChatNeverCommits(t *testing.T) {
	cfg, err := Parse([]string{"--chat"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg.Merge(&config.Config{Autocommit: true, ChunkSize: 1, Format: config.FormatText})
	assert.False(t, cfg.Autocommit)
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	cfg, err := Parse([]string{"--format", "pdf"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestSetExplicitSurvivesMerge(t *testing.T) {
	cfg := &Config{Autocommit: true}
	cfg.SetExplicit("autocommit")
	cfg.Merge(config.DefaultConfig())
	assert.True(t, cfg.Autocommit)
	assert.Equal(t, 256, cfg.ChunkSize)
}
