package detector

import (
	"context"
	"image"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/verdict"
)

// fakeEngine returns a fixed set of outputs and records the inputs it saw.
type fakeEngine struct {
	outputs []postprocess.View
	err     error

	mu     sync.Mutex
	inputs [][]int
	closed bool
}

func (e *fakeEngine) Run(ctx context.Context, input postprocess.View) ([]postprocess.View, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, input.Shape)

	return e.outputs, e.err
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

// gridOutput is a YOLOv5 [1, N, 85] output with one person in the middle of the 640x640
// input and a weaker duplicate that NMS removes.
func gridOutput(t *testing.T) postprocess.View {
	t.Helper()

	row := func(obj float32) []float32 {
		r := make([]float32, 85)
		r[0], r[1], r[2], r[3], r[4] = 320, 320, 64, 128, obj
		r[5] = 0.9
		return r
	}

	data := append(row(0.9), row(0.5)...)
	v, err := postprocess.NewView(data, 1, 2, 85)
	require.NoError(t, err)

	return v
}

// tallImage letterboxes into 640x640 with scale 3.2 and 160 pixels of horizontal padding.
func tallImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 100, 200))
}

func newDetector(t *testing.T, engine inference.Engine, opts ...func(*Builder)) *Detector {
	t.Helper()

	b := NewBuilder().
		WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv5, Path: "yolov5s.onnx"}).
		WithEngine(engine).
		WithLogger(zaptest.NewLogger(t))
	for _, opt := range opts {
		opt(b)
	}

	d, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	return d
}

func TestDetector_Detect(t *testing.T) {
	engine := &fakeEngine{outputs: []postprocess.View{gridOutput(t)}}
	d := newDetector(t, engine)

	set, err := d.Detect(context.Background(), tallImage())
	require.NoError(t, err)
	require.Len(t, set, 1)

	assert.Equal(t, 0, set[0].Class)
	assert.InDelta(t, 0.81, set[0].Score, 1e-5)
	assert.InDelta(t, 40, set[0].Box.X1, 1e-3)
	assert.InDelta(t, 80, set[0].Box.Y1, 1e-3)
	assert.InDelta(t, 60, set[0].Box.X2, 1e-3)
	assert.InDelta(t, 120, set[0].Box.Y2, 1e-3)
	assert.Equal(t, "person", d.Label(set[0].Class))

	require.Len(t, engine.inputs, 1)
	assert.Equal(t, []int{1, 3, 640, 640}, engine.inputs[0])
}

func TestDetector_DetectTimed(t *testing.T) {
	d := newDetector(t, &fakeEngine{outputs: []postprocess.View{gridOutput(t)}})

	set, timings, err := d.DetectTimed(context.Background(), tallImage())
	require.NoError(t, err)
	assert.Len(t, set, 1)
	assert.Positive(t, timings.Preprocess)
	assert.Equal(t, timings.Preprocess+timings.Inference+timings.Postprocess, timings.Total())

	_, timings, err = d.DetectTimed(context.Background(), nil)
	assert.Error(t, err)
	assert.Zero(t, timings.Inference)
	assert.Zero(t, timings.Postprocess)
}

func TestDetector_ChannelOrder(t *testing.T) {
	engine := &fakeEngine{outputs: []postprocess.View{gridOutput(t)}}
	d := newDetector(t, engine, func(b *Builder) { b.WithChannelOrder(preprocess.ChannelOrderHWC) })

	_, err := d.Detect(context.Background(), tallImage())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 640, 640, 3}, engine.inputs[0])
}

func TestDetector_Evaluate(t *testing.T) {
	tests := []struct {
		name    string
		verdict string
		want    bool
	}{
		{name: "preset verdict", want: true},
		{name: "class filter", verdict: "class:1", want: false},
		{name: "score above", verdict: "top-score>0.8", want: true},
		{name: "negated", verdict: "!exactly-one", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{outputs: []postprocess.View{gridOutput(t)}}
			d := newDetector(t, engine, func(b *Builder) {
				if tt.verdict != "" {
					b.WithVerdict(tt.verdict)
				}
			})

			ok, set, err := d.Evaluate(context.Background(), tallImage())
			require.NoError(t, err)
			assert.Len(t, set, 1)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestDetector_EvaluateEmpty(t *testing.T) {
	// One row, below the confidence threshold.
	data := make([]float32, 85)
	data[0], data[1], data[2], data[3], data[4], data[5] = 320, 320, 10, 10, 0.1, 0.9
	empty, err := postprocess.NewView(data, 1, 1, 85)
	require.NoError(t, err)

	d := newDetector(t, &fakeEngine{outputs: []postprocess.View{empty}})

	ok, set, err := d.Evaluate(context.Background(), tallImage())
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.False(t, ok)
}

func TestDetector_Errors(t *testing.T) {
	t.Run("nil image", func(t *testing.T) {
		d := newDetector(t, &fakeEngine{outputs: []postprocess.View{gridOutput(t)}})

		_, err := d.Detect(context.Background(), nil)
		assert.True(t, errors.Is(err, images.ErrInvalidImage))
	})

	t.Run("engine failure", func(t *testing.T) {
		d := newDetector(t, &fakeEngine{err: errors.New("device lost")})

		_, err := d.Detect(context.Background(), tallImage())
		assert.ErrorContains(t, err, "yolov5 inference")
		assert.ErrorContains(t, err, "device lost")
	})

	t.Run("missing output", func(t *testing.T) {
		d := newDetector(t, &fakeEngine{})

		_, err := d.Detect(context.Background(), tallImage())
		assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
	})

	t.Run("cancelled", func(t *testing.T) {
		d := newDetector(t, &fakeEngine{outputs: []postprocess.View{gridOutput(t)}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := d.Detect(ctx, tallImage())
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestDetector_DetectBatch(t *testing.T) {
	engine := &fakeEngine{outputs: []postprocess.View{gridOutput(t)}}
	d := newDetector(t, engine)

	imgs := []image.Image{tallImage(), tallImage(), tallImage()}
	sets, err := d.DetectBatch(context.Background(), imgs, 2)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	for _, set := range sets {
		require.Len(t, set, 1)
		assert.InDelta(t, 40, set[0].Box.X1, 1e-3)
	}
	assert.Len(t, engine.inputs, 3)

	_, err = d.DetectBatch(context.Background(), []image.Image{tallImage(), nil}, 2)
	assert.True(t, errors.Is(err, images.ErrInvalidImage))
}

func TestDetector_Geometry(t *testing.T) {
	d := newDetector(t, &fakeEngine{})

	g, err := d.Geometry(images.Dimensions{Width: 100, Height: 200})
	require.NoError(t, err)
	assert.InDelta(t, 3.2, g.ScaleX, 1e-6)
	assert.Equal(t, 160, g.PadX)
}

func TestBuilder(t *testing.T) {
	t.Run("factory receives the resolved model", func(t *testing.T) {
		var got model.BaseModel
		engine := &fakeEngine{}

		d, err := NewBuilder().
			WithModel(model.NewModelArgs{Name: model.ModelNameUltraFace, Path: "rfb-320.onnx"}).
			WithEngineFactory(func(m model.BaseModel) (inference.Engine, error) {
				got = m
				return engine, nil
			}).
			Build()
		require.NoError(t, err)

		assert.Equal(t, model.ModelNameUltraFace, got.Name)
		assert.Equal(t, "rfb-320.onnx", got.Path)
		assert.Equal(t, got, d.Model())

		require.NoError(t, d.Close())
		assert.True(t, engine.closed)
	})

	t.Run("factory failure", func(t *testing.T) {
		_, err := NewBuilder().
			WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv8}).
			WithEngineFactory(func(model.BaseModel) (inference.Engine, error) {
				return nil, errors.New("no library")
			}).
			Build()
		assert.ErrorContains(t, err, "no library")
	})

	t.Run("unknown model", func(t *testing.T) {
		b := NewBuilder().
			WithModel(model.NewModelArgs{Name: "yolov99"}).
			WithEngine(&fakeEngine{})
		assert.True(t, b.HasError())

		_, err := b.Build()
		assert.True(t, errors.Is(err, models.ErrUnsupportedModel))
	})

	t.Run("invalid verdict", func(t *testing.T) {
		_, err := NewBuilder().
			WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv5}).
			WithVerdict("most:3").
			WithEngine(&fakeEngine{}).
			Build()
		assert.True(t, errors.Is(err, verdict.ErrInvalidExpression))
	})

	t.Run("invalid channel order", func(t *testing.T) {
		_, err := NewBuilder().
			WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv5}).
			WithChannelOrder("nchw").
			WithEngine(&fakeEngine{}).
			Build()
		assert.True(t, errors.Is(err, model.ErrInvalidConfig))
	})

	t.Run("missing parts", func(t *testing.T) {
		_, err := NewBuilder().WithEngine(&fakeEngine{}).Build()
		assert.ErrorContains(t, err, "model not configured")

		_, err = NewBuilder().WithModel(model.NewModelArgs{Name: model.ModelNameYOLOv5}).Build()
		assert.ErrorContains(t, err, "engine not configured")

		assert.True(t, NewBuilder().WithEngine(nil).HasError())
	})

	t.Run("must build panics", func(t *testing.T) {
		assert.Panics(t, func() { NewBuilder().MustBuild() })
	})
}
