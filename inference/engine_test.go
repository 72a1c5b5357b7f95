package inference

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

func TestCopyView(t *testing.T) {
	shape := []int{1, 2, 3}
	data := []float32{1, 2, 3, 4, 5, 6}

	v, err := CopyView(shape, data)
	require.NoError(t, err)

	shape[1] = 7
	data[0] = 42
	assert.Equal(t, []int{1, 2, 3}, v.Shape)
	assert.Equal(t, float32(1), v.Data[0])

	_, err = CopyView([]int{2, 2}, data)
	assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
}

func TestCheckInput(t *testing.T) {
	tests := []struct {
		name  string
		input postprocess.View
		valid bool
	}{
		{"valid", postprocess.View{Shape: []int{1, 3, 2, 2}, Data: make([]float32, 12)}, true},
		{"empty", postprocess.View{}, false},
		{"short data", postprocess.View{Shape: []int{1, 3, 2, 2}, Data: make([]float32, 11)}, false},
		{"zero dimension", postprocess.View{Shape: []int{1, 0}, Data: nil}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckInput(tt.input)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, postprocess.ErrInvalidTensor))
		})
	}
}

func TestEngines(t *testing.T) {
	assert.ElementsMatch(t, []EngineType{EngineONNX, EngineOpenCV, EngineTFLite, EngineGorgonia}, Engines)
}
