package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 900, cfg.Chunking.MaxSize)
	assert.Equal(t, 3, cfg.Generation.ZeroYieldCeiling)
	assert.Equal(t, 20, cfg.Extension.CandidateCap)
	assert.Equal(t, 25, cfg.Targets.For(studypack.KindMindMap))
	assert.Equal(t, 0, cfg.Targets.For("unknown"))
}

func TestParseKeepsDefaultsForOmittedSections(t *testing.T) {
	cfg, err := Parse([]byte("pipeline: studygen\ngeneration:\n  page_size: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Generation.PageSize)
	assert.Equal(t, 6, cfg.Generation.SamplesPerAttempt)
	assert.Equal(t, 350, cfg.Chunking.MinSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline: studygen\ntargets:\n  flashcards: 8\n"), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv("STUDYGEN_TARGET_QUIZ", "9")
	t.Setenv("STUDYGEN_WINDOW_MAX_SIZE", "1200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Targets.Flashcards)
	assert.Equal(t, 9, cfg.Targets.Quiz)
	assert.Equal(t, 1200, cfg.Chunking.MaxSize)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"pipeline":     func(c *Config) { c.Pipeline = "other" },
		"overlap":      func(c *Config) { c.Chunking.OverlapSize = c.Chunking.MaxSize },
		"min over max": func(c *Config) { c.Chunking.MinSize = c.Chunking.MaxSize + 1 },
		"page size":    func(c *Config) { c.Generation.PageSize = 0 },
		"excerpt":      func(c *Config) { c.Generation.ExcerptMaxChars = 0 },
		"candidates":   func(c *Config) { c.Extension.CandidateCap = 0 },
		"target":       func(c *Config) { c.Targets.Quiz = 0 },
		"target max":   func(c *Config) { c.Targets.Flashcards = c.Targets.Max + 1 },
		"lock ttl":     func(c *Config) { c.Locks.TTLSeconds = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}
