package net

import "fmt"

// SquareLossLayer scores the previous layer's results against expected values
// with loss = sum of (result - expected)^2 / 2.
type SquareLossLayer struct {
	prev      Layer
	gradients []float32
}

func (l *SquareLossLayer) setBatchSize(int) {
	l.gradients = make([]float32, l.prev.ResultsSize())
}

func (l *SquareLossLayer) ResultsSize() int     { return l.prev.ResultsSize() }
func (l *SquareLossLayer) Results() []float32   { return l.prev.Results() }
func (l *SquareLossLayer) WeightsSize() int     { return 0 }
func (l *SquareLossLayer) Weights() []float32   { return nil }
func (l *SquareLossLayer) OutputPlanes() int    { return l.prev.OutputPlanes() }
func (l *SquareLossLayer) OutputImageSize() int { return l.prev.OutputImageSize() }

// CalcLoss accumulates in float64.
func (l *SquareLossLayer) CalcLoss(expected []float32) (float64, error) {
	results := l.prev.Results()
	if len(expected) != len(results) {
		return 0, fmt.Errorf("expected size mismatch: results hold %d, got %d", len(results), len(expected))
	}
	var loss float64
	for i, r := range results {
		d := float64(r - expected[i])
		loss += 0.5 * d * d
	}
	return loss, nil
}

// calcGradients returns d loss / d results.
func (l *SquareLossLayer) calcGradients(expected []float32) ([]float32, error) {
	results := l.prev.Results()
	if len(expected) != len(results) {
		return nil, fmt.Errorf("expected size mismatch: results hold %d, got %d", len(results), len(expected))
	}
	for i, r := range results {
		l.gradients[i] = r - expected[i]
	}
	return l.gradients, nil
}
