// Package randomizer fills weights and test tensors from a seeded 64-bit
// Mersenne Twister, so a seed reproduces the same values on every platform.
package randomizer

import (
	"github.com/seehuhn/mt19937"
)

type Randomizer struct {
	src *mt19937.MT19937
}

func New(seed int64) *Randomizer {
	src := mt19937.New()
	src.Seed(seed)
	return &Randomizer{src: src}
}

// Float64 returns a uniform value in [0, 1) built from the top 53 bits of one draw.
func (r *Randomizer) Float64() float64 {
	return float64(r.src.Uint64()>>11) / (1 << 53)
}

// Uniform returns a value in [lo, hi).
func (r *Randomizer) Uniform(lo, hi float32) float32 {
	return float32(float64(lo) + r.Float64()*float64(hi-lo))
}

// Fill overwrites values with draws from [lo, hi), in index order.
func (r *Randomizer) Fill(values []float32, lo, hi float32) {
	for i := range values {
		values[i] = r.Uniform(lo, hi)
	}
}

// Symmetric fills values from [-bound, bound).
func (r *Randomizer) Symmetric(values []float32, bound float32) {
	r.Fill(values, -bound, bound)
}
