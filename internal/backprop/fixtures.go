package backprop

import (
	"github.com/fxnlabs/convbackprop/internal/activation"
	"github.com/fxnlabs/convbackprop/internal/dimensions"
)

// Fixture is a named geometry used for comparisons and benchmarks.
type Fixture struct {
	Name       string
	Dim        dimensions.LayerDimensions
	BatchSize  int
	Activation activation.Function
	// Instances are the two variant ids the fixture compares by default.
	Instances [2]int
}

// Fixtures returns the standard geometries, largest first.
func Fixtures() []Fixture {
	return []Fixture{
		{
			Name: "kgsgo_32c5",
			Dim: dimensions.New().SetInputPlanes(32).SetInputImageSize(19).SetNumFilters(32).SetFilterSize(5).
				SetPadZeros(true).SetBiased(true),
			BatchSize:  128,
			Activation: activation.ReLU{},
			Instances:  [2]int{Cached, Scatter},
		},
		{
			Name: "kgsgo_32c5mini",
			Dim: dimensions.New().SetInputPlanes(2).SetInputImageSize(3).SetNumFilters(2).SetFilterSize(3).
				SetPadZeros(true).SetBiased(true),
			BatchSize:  4,
			Activation: activation.ReLU{},
			Instances:  [2]int{Cached, Scatter},
		},
		{
			Name: "kgsgo_32c5mini2",
			Dim: dimensions.New().SetInputPlanes(1).SetInputImageSize(2).SetNumFilters(1).SetFilterSize(2).
				SetPadZeros(true).SetBiased(true),
			BatchSize:  1,
			Activation: activation.ReLU{},
			Instances:  [2]int{Cached, Scatter},
		},
		{
			Name: "valid_5c3",
			Dim: dimensions.New().SetInputPlanes(1).SetInputImageSize(5).SetNumFilters(1).SetFilterSize(3).
				SetPadZeros(false).SetBiased(true),
			BatchSize:  5,
			Activation: activation.ReLU{},
			Instances:  [2]int{Naive, Cached},
		},
	}
}

// FixtureByName looks up one of Fixtures.
func FixtureByName(name string) (Fixture, bool) {
	for _, f := range Fixtures() {
		if f.Name == name {
			return f, true
		}
	}
	return Fixture{}, false
}
