package postprocess

import (
	"testing"

	"github.com/chewxy/math32"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/images"
)

func identityGeometry(t *testing.T) images.Geometry {
	t.Helper()

	g, err := images.NewGeometry(images.ModeLetterbox, images.Dimensions{Width: 640, Height: 640}, images.Dimensions{Width: 640, Height: 640})
	require.NoError(t, err)

	return g
}

func tallGeometry(t *testing.T) images.Geometry {
	t.Helper()

	g, err := images.NewGeometry(images.ModeLetterbox, images.Dimensions{Width: 100, Height: 200}, images.Dimensions{Width: 640, Height: 640})
	require.NoError(t, err)

	return g
}

func mustView(t *testing.T, data []float32, shape ...int) View {
	t.Helper()

	v, err := NewView(data, shape...)
	require.NoError(t, err)

	return v
}

func flatten(rows [][]float32) []float32 {
	out := make([]float32, 0)
	for _, r := range rows {
		out = append(out, r...)
	}

	return out
}

func transpose(rows [][]float32) []float32 {
	out := make([]float32, 0)
	for f := range rows[0] {
		for i := range rows {
			out = append(out, rows[i][f])
		}
	}

	return out
}

func assertBox(t *testing.T, expected, actual images.Rect) {
	t.Helper()

	assert.InDelta(t, expected.X1, actual.X1, 1e-3)
	assert.InDelta(t, expected.Y1, actual.Y1, 1e-3)
	assert.InDelta(t, expected.X2, actual.X2, 1e-3)
	assert.InDelta(t, expected.Y2, actual.Y2, 1e-3)
}

var gridRows = [][]float32{
	// Ties between classes 1 and 2 resolve to 1.
	{100, 100, 20, 40, 0.9, 0.1, 0.8, 0.8},
	// Box confidence just under the threshold; the class score would lift the product over it.
	{300, 300, 10, 10, 0.24, 2.0, 0, 0},
	// Passes the box gate, fails the product gate.
	{500, 500, 10, 10, 0.5, 0.4, 0.3, 0.2},
	// NaN box confidence fails both gates.
	{200, 200, 10, 10, math32.NaN(), 0.9, 0, 0},
	// NaN best class score fails the product gate.
	{400, 400, 10, 10, 0.9, math32.NaN(), 0, 0},
}

func TestGridDecoder_Gates(t *testing.T) {
	tests := []struct {
		name     string
		gate     GateMode
		expected []Result
	}{
		{
			name: "two-stage rejects on box confidence before classification",
			gate: GateTwoStage,
			expected: []Result{
				{Box: images.Rect{X1: 90, Y1: 80, X2: 110, Y2: 120}, Score: 0.72, Class: 1},
			},
		},
		{
			name: "single gate uses only the product",
			gate: GateSingle,
			expected: []Result{
				{Box: images.Rect{X1: 90, Y1: 80, X2: 110, Y2: 120}, Score: 0.72, Class: 1},
				{Box: images.Rect{X1: 295, Y1: 295, X2: 305, Y2: 305}, Score: 0.48, Class: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &GridDecoder{ConfidenceThreshold: 0.25, NumClasses: 3, Gate: tt.gate, Objectness: true}

			got, err := d.Decode(identityGeometry(t), mustView(t, flatten(gridRows), 1, len(gridRows), 8))
			require.NoError(t, err)
			require.Len(t, got, len(tt.expected))

			for i := range got {
				assert.Equal(t, tt.expected[i].Class, got[i].Class)
				assert.InDelta(t, tt.expected[i].Score, got[i].Score, 1e-5)
				assertBox(t, tt.expected[i].Box, got[i].Box)
			}
		})
	}
}

func TestGridDecoder_InverseLetterbox(t *testing.T) {
	d := &GridDecoder{ConfidenceThreshold: 0.25, NumClasses: 1, Objectness: true}
	rows := [][]float32{{320, 320, 64, 128, 0.9, 0.9}}

	got, err := d.Decode(tallGeometry(t), mustView(t, flatten(rows), 1, 6))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertBox(t, images.Rect{X1: 40, Y1: 80, X2: 60, Y2: 120}, got[0].Box)
}

func TestGridDecoder_ChannelMajor(t *testing.T) {
	rows := [][]float32{
		{100, 100, 20, 20, 0.1, 0.7},
		{200, 200, 20, 20, 0.2, 0.1},
		{300, 300, 20, 20, 0.6, 0.3},
	}
	d := &GridDecoder{ConfidenceThreshold: 0.5, NumClasses: 2, Layout: LayoutChannelMajor}

	got, err := d.Decode(identityGeometry(t), mustView(t, transpose(rows), 1, 6, 3))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1, got[0].Class)
	assert.InDelta(t, 0.7, got[0].Score, 1e-6)
	assertBox(t, images.Rect{X1: 90, Y1: 90, X2: 110, Y2: 110}, got[0].Box)

	assert.Equal(t, 0, got[1].Class)
	assert.InDelta(t, 0.6, got[1].Score, 1e-6)
	assertBox(t, images.Rect{X1: 290, Y1: 290, X2: 310, Y2: 310}, got[1].Box)
}

func TestGridDecoder_NormalizedCoords(t *testing.T) {
	d := &GridDecoder{ConfidenceThreshold: 0.25, NumClasses: 1, Objectness: true, NormalizedCoords: true}
	rows := [][]float32{{0.5, 0.5, 0.1, 0.2, 0.9, 0.9}}

	got, err := d.Decode(identityGeometry(t), mustView(t, flatten(rows), 1, 6))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertBox(t, images.Rect{X1: 288, Y1: 256, X2: 352, Y2: 384}, got[0].Box)
}

func TestGridDecoder_Errors(t *testing.T) {
	d := &GridDecoder{ConfidenceThreshold: 0.25, NumClasses: 3, Objectness: true}

	tests := []struct {
		name    string
		outputs []View
	}{
		{"no outputs", nil},
		{"two outputs", []View{{Shape: []int{1, 8}, Data: make([]float32, 8)}, {Shape: []int{1, 8}, Data: make([]float32, 8)}}},
		{"wrong field count", []View{{Shape: []int{2, 7}, Data: make([]float32, 14)}}},
		{"data shorter than shape", []View{{Shape: []int{2, 8}, Data: make([]float32, 15)}}},
		{"rank one", []View{{Shape: []int{8}, Data: make([]float32, 8)}}},
		{"batch larger than one", []View{{Shape: []int{2, 1, 8}, Data: make([]float32, 16)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(identityGeometry(t), tt.outputs...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTensor), "got %v", err)
		})
	}
}

func TestAnchorDecoder(t *testing.T) {
	g, err := images.NewGeometry(images.ModePlainResize, images.Dimensions{Width: 640, Height: 480}, images.Dimensions{Width: 320, Height: 240})
	require.NoError(t, err)

	scores := mustView(t, []float32{0.9, 0.1, 0.2, 0.8, 0.6, 0.4, 0, math32.NaN()}, 1, 4, 2)
	boxes := mustView(t, []float32{
		0, 0, 0.1, 0.1,
		0.1, 0.2, 0.3, 0.4,
		0.5, 0.5, 0.9, 0.9,
		0.2, 0.2, 0.4, 0.4,
	}, 1, 4, 4)

	d := &AnchorDecoder{ConfidenceThreshold: 0.5, PositiveClass: 1}
	got, err := d.Decode(g, scores, boxes)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, 1, got[0].Class)
	assert.InDelta(t, 0.8, got[0].Score, 1e-6)
	assertBox(t, images.Rect{X1: 64, Y1: 96, X2: 192, Y2: 192}, got[0].Box)
}

func TestAnchorDecoder_Errors(t *testing.T) {
	g := identityGeometry(t)
	d := &AnchorDecoder{ConfidenceThreshold: 0.5, PositiveClass: 1}

	tests := []struct {
		name    string
		outputs []View
	}{
		{"one output", []View{{Shape: []int{1, 2}, Data: make([]float32, 2)}}},
		{"scores not pairs", []View{{Shape: []int{2, 3}, Data: make([]float32, 6)}, {Shape: []int{2, 4}, Data: make([]float32, 8)}}},
		{"boxes not quads", []View{{Shape: []int{2, 2}, Data: make([]float32, 4)}, {Shape: []int{2, 5}, Data: make([]float32, 10)}}},
		{"row count mismatch", []View{{Shape: []int{3, 2}, Data: make([]float32, 6)}, {Shape: []int{2, 4}, Data: make([]float32, 8)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(g, tt.outputs...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTensor), "got %v", err)
		})
	}
}

func TestRowDecoder(t *testing.T) {
	t.Run("xyxy-score-class", func(t *testing.T) {
		d := &RowDecoder{ConfidenceThreshold: 0.5, Format: RowFormatXYXYScoreClass}
		rows := [][]float32{
			{288, 256, 352, 384, 0.9, 3},
			{0, 0, 10, 10, 0.3, 1},
			{288, 256, 352, 384, math32.NaN(), 2},
		}

		got, err := d.Decode(tallGeometry(t), mustView(t, flatten(rows), 1, 3, 6))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].Class)
		assert.InDelta(t, 0.9, got[0].Score, 1e-6)
		assertBox(t, images.Rect{X1: 40, Y1: 80, X2: 60, Y2: 120}, got[0].Box)
	})

	t.Run("class-score-cxcywh", func(t *testing.T) {
		d := &RowDecoder{ConfidenceThreshold: 0.7, Format: RowFormatClassScoreCXCYWH}
		rows := [][]float32{
			{2, 0.8, 0.5, 0.5, 0.1, 0.2},
			{5, 0.7, 0.5, 0.5, 0.1, 0.2},
			{1, math32.NaN(), 0.5, 0.5, 0.1, 0.2},
		}

		got, err := d.Decode(identityGeometry(t), mustView(t, flatten(rows), 3, 6))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].Class)
		assertBox(t, images.Rect{X1: 288, Y1: 256, X2: 352, Y2: 384}, got[0].Box)
	})

	t.Run("wrong width", func(t *testing.T) {
		d := &RowDecoder{ConfidenceThreshold: 0.5}
		_, err := d.Decode(identityGeometry(t), View{Shape: []int{1, 7}, Data: make([]float32, 7)})
		assert.True(t, errors.Is(err, ErrInvalidTensor))
	})
}

func TestNewDecoder(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DecodeConfig
		wantErr bool
		check   func(t *testing.T, d Decoder)
	}{
		{
			name: "grid defaults",
			cfg:  DecodeConfig{Strategy: StrategySingleStageGrid, NumClasses: 80, Objectness: true},
			check: func(t *testing.T, d Decoder) {
				grid, ok := d.(*GridDecoder)
				require.True(t, ok)
				assert.Equal(t, GateTwoStage, grid.Gate)
				assert.Equal(t, LayoutRowMajor, grid.Layout)
				assert.Equal(t, 85, grid.Fields())
			},
		},
		{
			name: "anchor",
			cfg:  DecodeConfig{Strategy: StrategyTwoTensorAnchor, ConfidenceThreshold: 0.5, PositiveClass: 1},
			check: func(t *testing.T, d Decoder) {
				assert.Equal(t, &AnchorDecoder{ConfidenceThreshold: 0.5, PositiveClass: 1}, d)
			},
		},
		{
			name: "rows default format",
			cfg:  DecodeConfig{Strategy: StrategyDecodedRows},
			check: func(t *testing.T, d Decoder) {
				assert.Equal(t, &RowDecoder{Format: RowFormatXYXYScoreClass}, d)
			},
		},
		{name: "unknown strategy", cfg: DecodeConfig{Strategy: "two-stage-rcnn"}, wantErr: true},
		{name: "grid without classes", cfg: DecodeConfig{Strategy: StrategySingleStageGrid}, wantErr: true},
		{name: "unknown gate", cfg: DecodeConfig{Strategy: StrategySingleStageGrid, NumClasses: 1, Gate: "triple"}, wantErr: true},
		{name: "unknown layout", cfg: DecodeConfig{Strategy: StrategySingleStageGrid, NumClasses: 1, Layout: "diagonal"}, wantErr: true},
		{name: "unknown row format", cfg: DecodeConfig{Strategy: StrategyDecodedRows, RowFormat: "yxyx"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDecoder(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			require.NoError(t, err)
			tt.check(t, d)
		})
	}
}

func TestView(t *testing.T) {
	v, err := NewView([]float32{1, 2, 3, 4, 5, 6}, 1, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, v.Size())

	rows, cols, err := v.Matrix()
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, []float32{4, 5, 6}, v.Row(1, cols))

	_, err = NewView(nil)
	assert.True(t, errors.Is(err, ErrInvalidTensor))

	_, err = NewView([]float32{1}, 1, 0)
	assert.True(t, errors.Is(err, ErrInvalidTensor))
}

func TestDetectionSet(t *testing.T) {
	set := DetectionSet{
		{Box: images.Rect{X1: -5, Y1: 10, X2: 50, Y2: 300}, Score: 0.9, Class: 1},
		{Box: images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}, Score: 0.4, Class: 2},
	}

	top, ok := set.Top()
	require.True(t, ok)
	assert.Equal(t, set[0], top)

	_, ok = DetectionSet{}.Top()
	assert.False(t, ok)

	clamped := set.Clamp(images.Dimensions{Width: 40, Height: 200})
	assert.Equal(t, images.Rect{X1: 0, Y1: 10, X2: 40, Y2: 200}, clamped[0].Box)
	assert.Equal(t, images.Rect{X1: -5, Y1: 10, X2: 50, Y2: 300}, set[0].Box)

	assert.Len(t, set.Filter(func(r Result) bool { return r.Class == 2 }), 1)
}
