package activation

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

// Function is an elementwise activation. Derivatives are expressed in terms of
// the activation's output, which is what a layer keeps after its forward pass.
type Function interface {
	Name() string
	Calc(x float32) float32
	CalcDerivative(output float32) float32
}

type Tanh struct{}

func (Tanh) Name() string                     { return "tanh" }
func (Tanh) Calc(x float32) float32           { return math32.Tanh(x) }
func (Tanh) CalcDerivative(y float32) float32 { return 1 - y*y }

type ReLU struct{}

func (ReLU) Name() string { return "relu" }

func (ReLU) Calc(x float32) float32 {
	if x > 0 {
		return x
	}
	return 0
}

func (ReLU) CalcDerivative(y float32) float32 {
	if y > 0 {
		return 1
	}
	return 0
}

type Linear struct{}

func (Linear) Name() string                   { return "linear" }
func (Linear) Calc(x float32) float32         { return x }
func (Linear) CalcDerivative(float32) float32 { return 1 }

type Sigmoid struct{}

func (Sigmoid) Name() string                     { return "sigmoid" }
func (Sigmoid) Calc(x float32) float32           { return 1 / (1 + math32.Exp(-x)) }
func (Sigmoid) CalcDerivative(y float32) float32 { return y * (1 - y) }

// FromName resolves a configured activation name.
func FromName(name string) (Function, error) {
	switch strings.ToLower(name) {
	case "tanh":
		return Tanh{}, nil
	case "relu":
		return ReLU{}, nil
	case "linear", "":
		return Linear{}, nil
	case "sigmoid":
		return Sigmoid{}, nil
	default:
		return nil, fmt.Errorf("unknown activation function: %s", name)
	}
}
