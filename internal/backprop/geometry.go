package backprop

import (
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/dimensions"
)

// geometry is LayerDimensions flattened into the integers kernels index with.
type geometry struct {
	planes  int
	image   int
	imageSq int
	filters int
	fsize   int
	fsizeSq int
	out     int
	outSq   int
	half    int
}

func newGeometry(dim dimensions.LayerDimensions) geometry {
	return geometry{
		planes:  dim.InputPlanes(),
		image:   dim.InputImageSize(),
		imageSq: dim.InputImageSize() * dim.InputImageSize(),
		filters: dim.NumFilters(),
		fsize:   dim.FilterSize(),
		fsizeSq: dim.FilterSize() * dim.FilterSize(),
		out:     dim.OutputImageSize(),
		outSq:   dim.OutputImageSize() * dim.OutputImageSize(),
		half:    dim.HalfFilterSize(),
	}
}

func (g geometry) weightIndex(f, p, u, v int) int {
	return ((f*g.planes+p)*g.fsize+u)*g.fsize + v
}

func (g geometry) errorIndex(n, f, oy, ox int) int {
	return ((n*g.filters+f)*g.out+oy)*g.out + ox
}

// wgslHeader declares the bindings and geometry constants shared by every shader.
func (g geometry) wgslHeader() string {
	return fmt.Sprintf(`@group(0) @binding(0) var<storage, read> errors: array<f32>;
@group(0) @binding(1) var<storage, read> weights: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;

const PLANES: i32 = %d;
const IMAGE: i32 = %d;
const IMAGE_SQ: i32 = %d;
const FILTERS: i32 = %d;
const FSIZE: i32 = %d;
const FSIZE_SQ: i32 = %d;
const OUT: i32 = %d;
const OUT_SQ: i32 = %d;
const HALF: i32 = %d;
`, g.planes, g.image, g.imageSq, g.filters, g.fsize, g.fsizeSq, g.out, g.outSq, g.half)
}
