package dimensions

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned by Validate for geometries no kernel can run.
var ErrInvalid = errors.New("invalid layer dimensions")

// LayerDimensions describes the geometry of one convolutional layer.
//
// The value is built with chained setters. Each setter returns a copy with every
// derived size recomputed, so a derived field can never disagree with the base
// fields it was computed from.
type LayerDimensions struct {
	inputPlanes    int
	inputImageSize int
	numFilters     int
	filterSize     int
	padZeros       bool
	biased         bool

	inputCubeSize   int
	outputImageSize int
	outputCubeSize  int
	filtersSize     int
	halfFilterSize  int
}

// New returns an empty geometry.
func New() LayerDimensions {
	return LayerDimensions{}
}

func (d LayerDimensions) SetInputPlanes(n int) LayerDimensions {
	d.inputPlanes = n
	return d.derive()
}

func (d LayerDimensions) SetInputImageSize(n int) LayerDimensions {
	d.inputImageSize = n
	return d.derive()
}

func (d LayerDimensions) SetNumFilters(n int) LayerDimensions {
	d.numFilters = n
	return d.derive()
}

func (d LayerDimensions) SetFilterSize(n int) LayerDimensions {
	d.filterSize = n
	return d.derive()
}

func (d LayerDimensions) SetPadZeros(pad bool) LayerDimensions {
	d.padZeros = pad
	return d.derive()
}

func (d LayerDimensions) SetBiased(biased bool) LayerDimensions {
	d.biased = biased
	return d.derive()
}

func (d LayerDimensions) derive() LayerDimensions {
	d.inputCubeSize = d.inputPlanes * d.inputImageSize * d.inputImageSize
	if d.padZeros {
		d.outputImageSize = d.inputImageSize
		d.halfFilterSize = d.filterSize / 2
	} else {
		d.outputImageSize = d.inputImageSize - d.filterSize + 1
		d.halfFilterSize = 0
	}
	if d.outputImageSize < 0 {
		d.outputImageSize = 0
	}
	d.outputCubeSize = d.numFilters * d.outputImageSize * d.outputImageSize
	d.filtersSize = d.numFilters * d.inputPlanes * d.filterSize * d.filterSize
	return d
}

func (d LayerDimensions) InputPlanes() int     { return d.inputPlanes }
func (d LayerDimensions) InputImageSize() int  { return d.inputImageSize }
func (d LayerDimensions) NumFilters() int      { return d.numFilters }
func (d LayerDimensions) FilterSize() int      { return d.filterSize }
func (d LayerDimensions) PadZeros() bool       { return d.padZeros }
func (d LayerDimensions) Biased() bool         { return d.biased }
func (d LayerDimensions) InputCubeSize() int   { return d.inputCubeSize }
func (d LayerDimensions) OutputImageSize() int { return d.outputImageSize }
func (d LayerDimensions) OutputCubeSize() int  { return d.outputCubeSize }
func (d LayerDimensions) FiltersSize() int     { return d.filtersSize }

// HalfFilterSize is the offset between an output position and the top-left
// corner of its receptive field. It is zero for valid convolutions.
func (d LayerDimensions) HalfFilterSize() int { return d.halfFilterSize }

// InputSizeFor returns the number of floats in a batch of input cubes.
func (d LayerDimensions) InputSizeFor(batchSize int) int {
	return batchSize * d.inputCubeSize
}

// OutputSizeFor returns the number of floats in a batch of output cubes.
func (d LayerDimensions) OutputSizeFor(batchSize int) int {
	return batchSize * d.outputCubeSize
}

// Validate reports geometries that cannot be convolved.
func (d LayerDimensions) Validate() error {
	switch {
	case d.inputPlanes <= 0:
		return fmt.Errorf("%w: inputPlanes must be positive, got %d", ErrInvalid, d.inputPlanes)
	case d.inputImageSize <= 0:
		return fmt.Errorf("%w: inputImageSize must be positive, got %d", ErrInvalid, d.inputImageSize)
	case d.numFilters <= 0:
		return fmt.Errorf("%w: numFilters must be positive, got %d", ErrInvalid, d.numFilters)
	case d.filterSize <= 0:
		return fmt.Errorf("%w: filterSize must be positive, got %d", ErrInvalid, d.filterSize)
	case !d.padZeros && d.filterSize > d.inputImageSize:
		return fmt.Errorf("%w: filterSize %d larger than unpadded input %d", ErrInvalid, d.filterSize, d.inputImageSize)
	}
	return nil
}

func (d LayerDimensions) String() string {
	return fmt.Sprintf("LayerDimensions{ inputPlanes=%d inputImageSize=%d numFilters=%d filterSize=%d outputImageSize=%d padZeros=%t biased=%t }",
		d.inputPlanes, d.inputImageSize, d.numFilters, d.filterSize, d.outputImageSize, d.padZeros, d.biased)
}

// BuildOptionsString renders every field as a stable key. Two geometries share a
// key exactly when they would compile to the same kernel.
func (d LayerDimensions) BuildOptionsString() string {
	var b strings.Builder
	opt := func(name string, v int) {
		fmt.Fprintf(&b, " -D g%s=%d", name, v)
	}
	opt("InputPlanes", d.inputPlanes)
	opt("InputImageSize", d.inputImageSize)
	opt("InputImageSizeSquared", d.inputImageSize*d.inputImageSize)
	opt("NumFilters", d.numFilters)
	opt("FilterSize", d.filterSize)
	opt("HalfFilterSize", d.filterSize/2)
	opt("FilterSizeSquared", d.filterSize*d.filterSize)
	opt("OutputImageSize", d.outputImageSize)
	opt("OutputImageSizeSquared", d.outputImageSize*d.outputImageSize)
	opt("PadZeros", boolToInt(d.padZeros))
	opt("Margin", d.halfFilterSize)
	opt("Biased", boolToInt(d.biased))
	return strings.TrimSpace(b.String())
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
