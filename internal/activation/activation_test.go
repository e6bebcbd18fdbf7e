package activation

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromName(t *testing.T) {
	tests := []struct {
		name    string
		want    Function
		wantErr bool
	}{
		{"tanh", Tanh{}, false},
		{"ReLU", ReLU{}, false},
		{"linear", Linear{}, false},
		{"", Linear{}, false},
		{"sigmoid", Sigmoid{}, false},
		{"softmax", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := FromName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, fn)
		})
	}
}

func TestDerivativeMatchesFiniteDifference(t *testing.T) {
	const h = 1e-3
	for _, fn := range []Function{Tanh{}, Sigmoid{}, Linear{}} {
		t.Run(fn.Name(), func(t *testing.T) {
			for _, x := range []float32{-1.5, -0.3, 0, 0.4, 1.2} {
				numeric := (fn.Calc(x+h) - fn.Calc(x-h)) / (2 * h)
				analytic := fn.CalcDerivative(fn.Calc(x))
				assert.InDelta(t, numeric, analytic, 1e-2, "x=%v", x)
			}
		})
	}
}

func TestReLU(t *testing.T) {
	fn := ReLU{}
	assert.Equal(t, float32(0), fn.Calc(-2))
	assert.Equal(t, float32(3), fn.Calc(3))
	assert.Equal(t, float32(0), fn.CalcDerivative(0))
	assert.Equal(t, float32(1), fn.CalcDerivative(0.5))
}

func TestTanhRange(t *testing.T) {
	fn := Tanh{}
	assert.InDelta(t, 1, fn.Calc(20), 1e-6)
	assert.InDelta(t, math32.Tanh(0.5), fn.Calc(0.5), 0)
}
