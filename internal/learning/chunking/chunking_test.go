package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "   \n\n\t", nil},
		{"single", "just one paragraph without a stop", []string{"just one paragraph without a stop"}},
		{"sentences", "Cells divide. Mitosis has phases! Why? Because.", []string{"Cells divide.", "Mitosis has phases!", "Why?", "Because."}},
		{"lowercase continuation", "It weighs 3.5 kg. see e.g. the table", []string{"It weighs 3.5 kg. see e.g. the table"}},
		{"closing quote", `He said "stop." Then left.`, []string{`He said "stop."`, "Then left."}},
		{"blank line forces break", "first part without stop\n\n  second part\nwraps here", []string{"first part without stop", "second part wraps here"}},
		{"crlf paragraphs", "One.\r\n\r\nTwo.", []string{"One.", "Two."}},
		{"ellipsis run", "Wait... Then go.", []string{"Wait...", "Then go."}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Segment(tc.in)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, 0, EstimateSize("   ", 4))
	assert.Equal(t, 1, EstimateSize("a", 4))
	assert.Equal(t, 1, EstimateSize("abcd", 4))
	assert.Equal(t, 2, EstimateSize("abcde", 4))
	assert.Equal(t, 2, EstimateSize("éééé€", 4))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	bad := []Config{
		{MinSize: 0, MaxSize: 5, OverlapSize: 1, CharsPerUnit: 4},
		{MinSize: 6, MaxSize: 5, OverlapSize: 1, CharsPerUnit: 4},
		{MinSize: 3, MaxSize: 5, OverlapSize: 5, CharsPerUnit: 4},
		{MinSize: 3, MaxSize: 5, OverlapSize: -1, CharsPerUnit: 4},
		{MinSize: 3, MaxSize: 5, OverlapSize: 1, CharsPerUnit: 0},
	}
	for i, c := range bad {
		assert.Error(t, c.Validate(), "case %d", i)
	}
}

func unitsOfSizeOne(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("U%d.", i%10)
	}
	return out
}

func TestBuildWindowsTwelveUnits(t *testing.T) {
	units := unitsOfSizeOne(12)
	cfg := Config{MinSize: 3, MaxSize: 5, OverlapSize: 1, CharsPerUnit: 4}

	windows, err := BuildWindows(units, cfg)
	require.NoError(t, err)
	require.Len(t, windows, 3)

	wantRanges := [][2]int{{0, 5}, {4, 9}, {8, 12}}
	for i, w := range windows {
		assert.Equal(t, i, w.OrderIndex)
		assert.Equal(t, wantRanges[i][0], w.UnitStart)
		assert.Equal(t, wantRanges[i][1], w.UnitEnd)
		assert.Equal(t, w.UnitEnd-w.UnitStart, w.SizeEstimate)
		assert.Equal(t, strings.Join(units[w.UnitStart:w.UnitEnd], " "), w.Content)
	}
	// one shared unit between neighbours
	assert.True(t, strings.HasPrefix(windows[1].Content, units[4]))
	assert.True(t, strings.HasPrefix(windows[2].Content, units[8]))
}

func TestBuildWindowsKeepsFinalPartial(t *testing.T) {
	units := unitsOfSizeOne(6)
	windows, err := BuildWindows(units, Config{MinSize: 3, MaxSize: 5, OverlapSize: 0, CharsPerUnit: 4})
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, 5, windows[1].UnitStart)
	assert.Equal(t, 6, windows[1].UnitEnd)
	assert.Equal(t, 1, windows[1].SizeEstimate)
}

func TestBuildWindowsOversizedUnit(t *testing.T) {
	units := []string{"A.", strings.Repeat("x", 80), "B."}
	windows, err := BuildWindows(units, Config{MinSize: 1, MaxSize: 5, OverlapSize: 0, CharsPerUnit: 4})
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, 20, windows[1].SizeEstimate)
}

func TestBuildWindowsEmpty(t *testing.T) {
	_, err := BuildWindows([]string{" ", ""}, DefaultConfig())
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = Chunk("\n\n  \n", DefaultConfig())
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestChunkReconstructsAndBoundsOverlap(t *testing.T) {
	var b strings.Builder
	for p := 0; p < 7; p++ {
		for s := 0; s < 9; s++ {
			fmt.Fprintf(&b, "Paragraph %d sentence %d carries %s words. ", p, s, strings.Repeat("many ", s%4))
		}
		b.WriteString("\n\n")
	}
	text := b.String()
	units := Segment(text)
	require.NotEmpty(t, units)

	configs := []Config{
		{MinSize: 10, MaxSize: 30, OverlapSize: 8, CharsPerUnit: 4},
		{MinSize: 1, MaxSize: 12, OverlapSize: 11, CharsPerUnit: 4},
		{MinSize: 50, MaxSize: 60, OverlapSize: 0, CharsPerUnit: 3},
		DefaultConfig(),
	}
	for i, cfg := range configs {
		windows, err := Chunk(text, cfg)
		require.NoError(t, err, "config %d", i)
		require.NotEmpty(t, windows)

		assert.Equal(t, units, Dedup(windows, units), "config %d", i)

		for j, w := range windows {
			assert.Equal(t, j, w.OrderIndex)
			assert.NotEmpty(t, w.Content)
			assert.Positive(t, w.SizeEstimate)
			if j == 0 {
				continue
			}
			prev := windows[j-1]
			shared := 0
			for u := w.UnitStart; u < prev.UnitEnd; u++ {
				shared += EstimateSize(units[u], cfg.CharsPerUnit)
			}
			assert.LessOrEqual(t, shared, cfg.OverlapSize, "config %d window %d", i, j)
			assert.Greater(t, w.UnitStart, prev.UnitStart)
		}
	}
}

func TestStrideIndices(t *testing.T) {
	assert.Nil(t, StrideIndices(10, 0))
	assert.Nil(t, StrideIndices(0, 3))
	assert.Equal(t, []int{0, 1, 2}, StrideIndices(3, 5))
	assert.Equal(t, []int{0, 1, 2, 3}, StrideIndices(4, 4))
	assert.Equal(t, []int{0, 3, 6}, StrideIndices(10, 3))

	for n := 1; n <= 40; n++ {
		for k := 1; k <= n; k++ {
			idx := StrideIndices(n, k)
			require.Len(t, idx, k)
			assert.Equal(t, 0, idx[0])
			for i := 1; i < len(idx); i++ {
				assert.Greater(t, idx[i], idx[i-1], "n=%d k=%d", n, k)
			}
			assert.Less(t, idx[len(idx)-1], n)
		}
	}
}

func TestSample(t *testing.T) {
	items := []string{"a", "b", "c"}
	assert.Equal(t, items, Sample(items, 3))
	assert.Equal(t, items, Sample(items, 10))
	assert.Equal(t, []string{"a"}, Sample(items, 1))

	ws := make([]Window, 9)
	for i := range ws {
		ws[i].OrderIndex = i
	}
	got := Sample(ws, 4)
	require.Len(t, got, 4)
	assert.Equal(t, []int{0, 2, 4, 6}, []int{got[0].OrderIndex, got[1].OrderIndex, got[2].OrderIndex, got[3].OrderIndex})
}
