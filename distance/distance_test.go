package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dot(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8}, // (1 - -1)^2 + (-1 - 1)^2 = 4 + 4 = 8
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SquaredL2(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Parallel", []float32{1, 0}, []float32{5, 0}, 0},
		{"Orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"Opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"ZeroVector", []float32{0, 0}, []float32{1, 2}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, 1e-5)
		})
	}
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		ok := NormalizeL2InPlace(v)
		require.True(t, ok)
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		assert.InDelta(t, 1.0, Magnitude(v), 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		v := []float32{0, 0, 0}
		assert.False(t, NormalizeL2InPlace(v))

		_, ok := NormalizeL2Copy(v)
		assert.False(t, ok)
	})

	t.Run("CopyLeavesSourceUntouched", func(t *testing.T) {
		src := []float32{0, 5}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{0, 5}, src)
		assert.InDelta(t, 1.0, dst[1], 1e-6)
	})
}

func TestProvider(t *testing.T) {
	t.Run("LowerIsCloser", func(t *testing.T) {
		a := []float32{1, 0}
		near := []float32{0.9, 0.1}
		far := []float32{0.1, 0.9}

		for _, m := range []Metric{MetricCosine, MetricSquaredL2, MetricDot} {
			fn, err := Provider(m)
			require.NoError(t, err)
			assert.Less(t, fn(a, near), fn(a, far), "metric %s must rank the closer vector lower", m)
		}
	})

	t.Run("NegatedDot", func(t *testing.T) {
		fn, err := Provider(MetricDot)
		require.NoError(t, err)
		assert.InDelta(t, float32(-32), fn([]float32{1, 2, 3}, []float32{4, 5, 6}), 1e-5)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := Provider(Metric(99))
		assert.Error(t, err)
	})
}

func TestMetricByName(t *testing.T) {
	for _, m := range []Metric{MetricCosine, MetricSquaredL2, MetricDot} {
		got, ok := MetricByName(m.String())
		require.True(t, ok)
		assert.Equal(t, m, got)
	}

	_, ok := MetricByName("hamming")
	assert.False(t, ok)

	assert.True(t, math.Signbit(float64(NegatedDot([]float32{1}, []float32{1}))))
}
