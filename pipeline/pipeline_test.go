package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/yolov5"
	"github.com/nvr-ai/go-detect/verdict"
)

// tall is letterboxed into 640x640 with scale 3.2 and 160 pixels of horizontal padding.
var tall = images.Dimensions{Width: 100, Height: 200}

// gridRow builds one [cx, cy, w, h, obj, 80 class scores] row with a single hot class.
func gridRow(cx, cy, w, h, obj float32, class int, score float32) []float32 {
	row := make([]float32, 85)
	row[0], row[1], row[2], row[3], row[4] = cx, cy, w, h, obj
	row[5+class] = score

	return row
}

func gridView(t *testing.T, rows ...[]float32) postprocess.View {
	t.Helper()

	data := make([]float32, 0, len(rows)*85)
	for _, r := range rows {
		data = append(data, r...)
	}
	v, err := postprocess.NewView(data, 1, len(rows), 85)
	require.NoError(t, err)

	return v
}

func TestPipeline_Run(t *testing.T) {
	cfg := yolov5.DefaultConfig()
	cfg.ClassAgnostic = false
	p, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	output := gridView(t,
		gridRow(320, 320, 64, 128, 0.9, 0, 0.9),
		// Same box, lower score: suppressed.
		gridRow(320, 320, 64, 128, 0.5, 0, 0.9),
		// Same box, other class: kept.
		gridRow(320, 320, 64, 128, 0.8, 2, 0.5),
		// Below the threshold.
		gridRow(400, 400, 10, 10, 0.1, 0, 0.9),
	)

	set, err := p.Run(tall, output)
	require.NoError(t, err)
	require.Len(t, set, 2)

	assert.Equal(t, 0, set[0].Class)
	assert.InDelta(t, 0.81, set[0].Score, 1e-5)
	assert.InDelta(t, 40, set[0].Box.X1, 1e-3)
	assert.InDelta(t, 80, set[0].Box.Y1, 1e-3)
	assert.InDelta(t, 60, set[0].Box.X2, 1e-3)
	assert.InDelta(t, 120, set[0].Box.Y2, 1e-3)

	assert.Equal(t, 2, set[1].Class)
	assert.InDelta(t, 0.4, set[1].Score, 1e-5)
}

// TestPipeline_PresetSuppression checks that the YOLOv5 presets suppress overlapping boxes
// regardless of label, which keeps "exactly-one" stable when labels disagree.
func TestPipeline_PresetSuppression(t *testing.T) {
	t.Run("grid", func(t *testing.T) {
		p, err := New(yolov5.DefaultConfig())
		require.NoError(t, err)

		output := gridView(t,
			gridRow(320, 320, 64, 128, 0.9, 0, 0.9),
			gridRow(320, 320, 64, 128, 0.8, 2, 0.9),
		)

		ok, set, err := p.Evaluate(tall, verdict.MustParse(p.Config().Verdict), output)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, 0, set[0].Class)
		assert.True(t, ok)
	})

	t.Run("mnn rows", func(t *testing.T) {
		p, err := New(yolov5.MNNConfig())
		require.NoError(t, err)

		// class, score, cx, cy, w, h normalised to the 640x640 input.
		data := []float32{
			0, 0.9, 0.5, 0.5, 0.1, 0.2,
			1, 0.8, 0.5, 0.5, 0.1, 0.2,
		}
		output, err := postprocess.NewView(data, 1, 2, 6)
		require.NoError(t, err)

		pred, err := p.Verdict()
		require.NoError(t, err)

		ok, set, err := p.Evaluate(tall, pred, output)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, 0, set[0].Class)
		assert.True(t, ok)
	})
}

func TestPipeline_PresetVerdict(t *testing.T) {
	p, err := New(yolov5.DefaultConfig())
	require.NoError(t, err)
	pred, err := p.Verdict()
	require.NoError(t, err)

	// 0.6 * 0.5 clears the 0.25 confidence threshold but not the verdict.
	weak := gridView(t, gridRow(320, 320, 64, 128, 0.6, 0, 0.5))
	ok, set, err := p.Evaluate(tall, pred, weak)
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.False(t, ok)

	strong := gridView(t, gridRow(320, 320, 64, 128, 0.9, 0, 0.9))
	ok, _, err = p.Evaluate(tall, pred, strong)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPipeline_NaNScores(t *testing.T) {
	nan := float32(math.NaN())

	for _, gate := range []postprocess.GateMode{postprocess.GateTwoStage, postprocess.GateSingle} {
		t.Run(string(gate), func(t *testing.T) {
			cfg := yolov5.DefaultConfig()
			cfg.Gate = gate
			p, err := New(cfg)
			require.NoError(t, err)

			output := gridView(t,
				gridRow(320, 320, 10, 10, nan, 0, 0.9),
				gridRow(100, 100, 10, 10, 0.9, 0, nan),
			)

			ok, set, err := p.Evaluate(tall, verdict.NonEmpty(), output)
			require.NoError(t, err)
			assert.Empty(t, set)
			assert.False(t, ok)
		})
	}
}

func TestPipeline_ClampBoxes(t *testing.T) {
	cfg := yolov5.MNNConfig()

	// class, score, cx, cy, w, h normalised to the 640x640 input.
	data := []float32{0, 0.9, 0.5, 0.5, 1.2, 0.2}
	output, err := postprocess.NewView(data, 1, 1, 6)
	require.NoError(t, err)

	t.Run("enabled", func(t *testing.T) {
		p, err := New(cfg)
		require.NoError(t, err)

		set, err := p.Run(tall, output)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.InDelta(t, 0, set[0].Box.X1, 1e-3)
		assert.InDelta(t, 100, set[0].Box.X2, 1e-3)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg.ClampBoxes = false
		p, err := New(cfg)
		require.NoError(t, err)

		set, err := p.Run(tall, output)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.InDelta(t, -70, set[0].Box.X1, 1e-3)
		assert.InDelta(t, 170, set[0].Box.X2, 1e-3)
	})
}

func TestPipeline_Evaluate(t *testing.T) {
	p, err := New(yolov5.DefaultConfig())
	require.NoError(t, err)

	output := gridView(t,
		gridRow(320, 320, 64, 128, 0.9, 0, 0.9),
		gridRow(100, 100, 20, 20, 0.9, 1, 0.9),
	)

	ok, set, err := p.Evaluate(tall, verdict.ExactlyOne(), output)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, set, 2)

	ok, _, err = p.Evaluate(tall, verdict.MustParse("class:1 && at-least:2"), output)
	require.NoError(t, err)
	assert.True(t, ok)

	empty := gridView(t, gridRow(320, 320, 64, 128, 0.1, 0, 0.9))
	ok, set, err = p.Evaluate(tall, verdict.NonEmpty(), empty)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotNil(t, set)
	assert.Empty(t, set)
}

func TestPipeline_Verdict(t *testing.T) {
	cfg := yolov5.DefaultConfig()
	cfg.Verdict = ""
	p, err := New(cfg)
	require.NoError(t, err)

	pred, err := p.Verdict()
	require.NoError(t, err)
	assert.True(t, pred(postprocess.DetectionSet{{Score: 0.5}}))

	p, err = New(yolov5.MNNConfig())
	require.NoError(t, err)
	pred, err = p.Verdict()
	require.NoError(t, err)
	assert.False(t, pred(postprocess.DetectionSet{{Score: 0.5}, {Score: 0.4}}))
}

func TestPipeline_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := yolov5.DefaultConfig()
		cfg.IoUThreshold = 0

		_, err := New(cfg)
		assert.True(t, errors.Is(err, model.ErrInvalidConfig))
	})

	p, err := New(yolov5.DefaultConfig())
	require.NoError(t, err)
	output := gridView(t, gridRow(320, 320, 64, 128, 0.9, 0, 0.9))

	t.Run("zero image", func(t *testing.T) {
		_, err := p.Run(images.Dimensions{}, output)
		assert.True(t, errors.Is(err, postprocess.ErrInvalidImage))
	})

	t.Run("missing output", func(t *testing.T) {
		_, err := p.Run(tall)
		assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
	})

	t.Run("wrong width", func(t *testing.T) {
		bad, err := postprocess.NewView(make([]float32, 84), 1, 1, 84)
		require.NoError(t, err)

		_, err = p.Run(tall, bad)
		assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
	})
}

func TestPipeline_Logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	p, err := New(yolov5.DefaultConfig(), WithLogger(zap.New(core)))
	require.NoError(t, err)

	_, err = p.Run(tall, gridView(t, gridRow(320, 320, 64, 128, 0.9, 0, 0.9)))
	require.NoError(t, err)

	entries := logs.FilterMessage("post-processed outputs").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, int64(1), entries[0].ContextMap()["detections"])
}

func TestRunBatch(t *testing.T) {
	p, err := New(yolov5.DefaultConfig())
	require.NoError(t, err)

	jobs := []Job{
		{Dimensions: tall, Outputs: []postprocess.View{gridView(t, gridRow(320, 320, 64, 128, 0.9, 0, 0.9))}},
		{Dimensions: tall, Outputs: []postprocess.View{gridView(t, gridRow(320, 320, 64, 128, 0.1, 0, 0.9))}},
		{Dimensions: tall, Outputs: []postprocess.View{gridView(t,
			gridRow(320, 320, 64, 128, 0.9, 0, 0.9),
			gridRow(100, 100, 20, 20, 0.9, 1, 0.9),
		)}},
	}

	for _, concurrency := range []int{0, 1, 2, 8} {
		sets, err := RunBatch(context.Background(), p, jobs, concurrency)
		require.NoError(t, err)
		require.Len(t, sets, 3)
		assert.Len(t, sets[0], 1)
		assert.Empty(t, sets[1])
		assert.Len(t, sets[2], 2)
	}

	t.Run("first error", func(t *testing.T) {
		bad := append([]Job{}, jobs...)
		bad[1] = Job{Dimensions: tall}

		_, err := RunBatch(context.Background(), p, bad, 2)
		require.Error(t, err)
		assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
		assert.Contains(t, err.Error(), "job 1")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := RunBatch(ctx, p, jobs, 2)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("no jobs", func(t *testing.T) {
		sets, err := RunBatch(context.Background(), p, nil, 4)
		require.NoError(t, err)
		assert.Empty(t, sets)
	})
}
