package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyInput means the text produced no sentence units at all.
var ErrEmptyInput = errors.New("chunking: no text units")

// Config bounds windows in size units (see EstimateSize).
type Config struct {
	MinSize      int `yaml:"min_size" json:"min_size"`
	MaxSize      int `yaml:"max_size" json:"max_size"`
	OverlapSize  int `yaml:"overlap_size" json:"overlap_size"`
	CharsPerUnit int `yaml:"chars_per_unit" json:"chars_per_unit"`
}

func DefaultConfig() Config {
	return Config{MinSize: 350, MaxSize: 900, OverlapSize: 120, CharsPerUnit: 4}
}

func (c Config) Validate() error {
	switch {
	case c.MinSize <= 0 || c.MaxSize <= 0:
		return fmt.Errorf("chunking: min_size and max_size must be > 0 (got %d, %d)", c.MinSize, c.MaxSize)
	case c.MinSize > c.MaxSize:
		return fmt.Errorf("chunking: min_size %d exceeds max_size %d", c.MinSize, c.MaxSize)
	case c.OverlapSize < 0 || c.OverlapSize >= c.MaxSize:
		return fmt.Errorf("chunking: overlap_size %d must be in [0, max_size)", c.OverlapSize)
	case c.CharsPerUnit <= 0:
		return fmt.Errorf("chunking: chars_per_unit must be > 0")
	}
	return nil
}

// Window is one bounded excerpt. UnitStart/UnitEnd index the half-open range of
// sentence units it covers, so overlaps can be removed exactly.
type Window struct {
	OrderIndex   int    `json:"order_index"`
	Content      string `json:"content"`
	SizeEstimate int    `json:"size_estimate"`
	UnitStart    int    `json:"unit_start"`
	UnitEnd      int    `json:"unit_end"`
}

// EstimateSize approximates a token count: ceil(runes / charsPerUnit), at least 1
// for non-blank text.
func EstimateSize(s string, charsPerUnit int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if charsPerUnit <= 0 {
		charsPerUnit = 4
	}
	n := utf8.RuneCountInString(s)
	size := (n + charsPerUnit - 1) / charsPerUnit
	if size < 1 {
		size = 1
	}
	return size
}

// BuildWindows greedily packs units into windows. A window closes only when the
// next unit would push it past MaxSize and it already holds MinSize; the next
// window is seeded with the closed window's trailing units whose combined size
// stays within OverlapSize. The last partial window is always kept.
func BuildWindows(units []string, cfg Config) ([]Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sizes := make([]int, 0, len(units))
	kept := make([]string, 0, len(units))
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		kept = append(kept, u)
		sizes = append(sizes, EstimateSize(u, cfg.CharsPerUnit))
	}
	if len(kept) == 0 {
		return nil, ErrEmptyInput
	}

	var out []Window
	start, cur := 0, 0
	emit := func(end int) {
		out = append(out, Window{
			OrderIndex:   len(out),
			Content:      strings.Join(kept[start:end], " "),
			SizeEstimate: cur,
			UnitStart:    start,
			UnitEnd:      end,
		})
	}

	for i := range kept {
		if i > start && cur+sizes[i] > cfg.MaxSize && cur >= cfg.MinSize {
			emit(i)
			seedStart, seedSize := overlapSeed(sizes, start, i, cfg.OverlapSize)
			start, cur = seedStart, seedSize
		}
		cur += sizes[i]
	}
	emit(len(kept))
	return out, nil
}

// overlapSeed walks back from end over [start, end) collecting units while the
// running size stays within limit. The first unit of the closed window is never
// reused, so consecutive windows always differ.
func overlapSeed(sizes []int, start, end, limit int) (int, int) {
	seedStart, total := end, 0
	for j := end - 1; j > start; j-- {
		if total+sizes[j] > limit {
			break
		}
		total += sizes[j]
		seedStart = j
	}
	return seedStart, total
}

// Chunk is Segment followed by BuildWindows.
func Chunk(text string, cfg Config) ([]Window, error) {
	units := Segment(text)
	if len(units) == 0 {
		return nil, ErrEmptyInput
	}
	return BuildWindows(units, cfg)
}

// Dedup reconstructs the unit sequence from windows by dropping, for every
// window, the units already covered by its predecessor.
func Dedup(windows []Window, units []string) []string {
	out := []string{}
	next := 0
	for _, w := range windows {
		from := w.UnitStart
		if from < next {
			from = next
		}
		for i := from; i < w.UnitEnd && i < len(units); i++ {
			out = append(out, units[i])
		}
		if w.UnitEnd > next {
			next = w.UnitEnd
		}
	}
	return out
}
