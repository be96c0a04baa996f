// Package config loads the generation pipeline's tuning knobs.
package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/learning/chunking"
	"github.com/yungbote/neurobridge-studygen/internal/learning/convergence"
	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
)

const configPathEnv = "STUDYGEN_CONFIG_YAML"

//go:embed studygen.yaml
var defaultFS embed.FS

type Config struct {
	Pipeline   string           `yaml:"pipeline"`
	Version    int              `yaml:"version"`
	Chunking   chunking.Config  `yaml:"chunking"`
	Generation GenerationConfig `yaml:"generation"`
	Extension  ExtensionConfig  `yaml:"extension"`
	Targets    TargetsConfig    `yaml:"targets"`
	Locks      LockConfig       `yaml:"locks"`
}

type GenerationConfig struct {
	convergence.Config `yaml:",inline"`
	// ExcerptMaxChars truncates each sampled window in the prompt.
	ExcerptMaxChars int `yaml:"excerpt_max_chars"`
}

type ExtensionConfig struct {
	CandidateCap      int `yaml:"candidate_cap"`
	VocabularyCap     int `yaml:"vocabulary_cap"`
	ExistingSampleCap int `yaml:"existing_sample_cap"`
}

type TargetsConfig struct {
	Flashcards int `yaml:"flashcards"`
	Quiz       int `yaml:"quiz"`
	MindMap    int `yaml:"mindmap"`
	// Max caps any requested target or extension count.
	Max int `yaml:"max"`
}

// For returns the default target for kind.
func (t TargetsConfig) For(kind studypack.ArtifactKind) int {
	switch kind {
	case studypack.KindFlashcards:
		return t.Flashcards
	case studypack.KindQuiz:
		return t.Quiz
	case studypack.KindMindMap:
		return t.MindMap
	}
	return 0
}

type LockConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

func (l LockConfig) TTL() time.Duration {
	return time.Duration(l.TTLSeconds) * time.Second
}

// Load reads the embedded defaults, or the file named by STUDYGEN_CONFIG_YAML,
// then applies STUDYGEN_* env overrides and validates the result.
func Load() (*Config, error) {
	data, err := read()
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default is the embedded configuration without env overrides.
func Default() *Config {
	data, err := defaultFS.ReadFile("studygen.yaml")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	cfg, err := Parse(data)
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

func read() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(configPathEnv)); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		return b, nil
	}
	return defaultFS.ReadFile("studygen.yaml")
}

// Parse decodes YAML over built-in defaults, so omitted sections keep them.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Pipeline:   "studygen",
		Version:    1,
		Chunking:   chunking.DefaultConfig(),
		Generation: GenerationConfig{Config: convergence.DefaultConfig(), ExcerptMaxChars: 4000},
		Extension:  ExtensionConfig{CandidateCap: 20, VocabularyCap: 40, ExistingSampleCap: 30},
		Targets:    TargetsConfig{Flashcards: 30, Quiz: 15, MindMap: 25, Max: 200},
		Locks:      LockConfig{TTLSeconds: 900},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Chunking.MinSize = envutil.Int("STUDYGEN_WINDOW_MIN_SIZE", cfg.Chunking.MinSize)
	cfg.Chunking.MaxSize = envutil.Int("STUDYGEN_WINDOW_MAX_SIZE", cfg.Chunking.MaxSize)
	cfg.Chunking.OverlapSize = envutil.Int("STUDYGEN_WINDOW_OVERLAP_SIZE", cfg.Chunking.OverlapSize)
	cfg.Chunking.CharsPerUnit = envutil.Int("STUDYGEN_CHARS_PER_UNIT", cfg.Chunking.CharsPerUnit)

	cfg.Generation.PageSize = envutil.Int("STUDYGEN_PAGE_SIZE", cfg.Generation.PageSize)
	cfg.Generation.SamplesPerAttempt = envutil.Int("STUDYGEN_SAMPLES_PER_ATTEMPT", cfg.Generation.SamplesPerAttempt)
	cfg.Generation.ZeroYieldCeiling = envutil.Int("STUDYGEN_ZERO_YIELD_CEILING", cfg.Generation.ZeroYieldCeiling)
	cfg.Generation.ExcerptMaxChars = envutil.Int("STUDYGEN_EXCERPT_MAX_CHARS", cfg.Generation.ExcerptMaxChars)

	cfg.Extension.CandidateCap = envutil.Int("STUDYGEN_CANDIDATE_CAP", cfg.Extension.CandidateCap)
	cfg.Extension.VocabularyCap = envutil.Int("STUDYGEN_VOCABULARY_CAP", cfg.Extension.VocabularyCap)
	cfg.Extension.ExistingSampleCap = envutil.Int("STUDYGEN_EXISTING_SAMPLE_CAP", cfg.Extension.ExistingSampleCap)

	cfg.Targets.Flashcards = envutil.Int("STUDYGEN_TARGET_FLASHCARDS", cfg.Targets.Flashcards)
	cfg.Targets.Quiz = envutil.Int("STUDYGEN_TARGET_QUIZ", cfg.Targets.Quiz)
	cfg.Targets.MindMap = envutil.Int("STUDYGEN_TARGET_MINDMAP", cfg.Targets.MindMap)
	cfg.Targets.Max = envutil.Int("STUDYGEN_TARGET_MAX", cfg.Targets.Max)

	cfg.Locks.TTLSeconds = envutil.Int("STUDYGEN_LOCK_TTL_SECONDS", cfg.Locks.TTLSeconds)
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: missing")
	}
	if strings.TrimSpace(c.Pipeline) != "studygen" {
		return fmt.Errorf("config: unexpected pipeline %q", c.Pipeline)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Generation.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Generation.ExcerptMaxChars <= 0 {
		return errors.New("config: generation.excerpt_max_chars must be > 0")
	}
	if c.Extension.CandidateCap <= 0 || c.Extension.VocabularyCap <= 0 || c.Extension.ExistingSampleCap < 0 {
		return errors.New("config: extension caps must be > 0")
	}
	if c.Targets.Max <= 0 {
		return errors.New("config: targets.max must be > 0")
	}
	for _, k := range studypack.AllKinds() {
		if n := c.Targets.For(k); n <= 0 || n > c.Targets.Max {
			return fmt.Errorf("config: targets.%s must be in [1, %d] (got %d)", k, c.Targets.Max, n)
		}
	}
	if c.Locks.TTLSeconds <= 0 {
		return errors.New("config: locks.ttl_seconds must be > 0")
	}
	return nil
}
