package backprop

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/fxnlabs/convbackprop/internal/gpu"
)

// gemm runs on the host only. Per image it forms the column matrix
// cols = Wᵀ · E, with W as filters × (planes·k·k) and E as filters × (out·out),
// then folds the columns back onto the image (col2im).
func gemmKernel(key string, g geometry, batchSize int) *gpu.Kernel {
	rows := g.planes * g.fsizeSq
	return &gpu.Kernel{
		Name:          "backprop_errors_gemm",
		Key:           key,
		WorkgroupSize: 1,
		Groups:        batchSize,
		Run: func(n int, args [][]float32) {
			errs, weights, out := args[0], args[1], args[2]
			w := blas32.General{
				Rows:   g.filters,
				Cols:   rows,
				Stride: rows,
				Data:   weights[:g.filters*rows],
			}
			e := blas32.General{
				Rows:   g.filters,
				Cols:   g.outSq,
				Stride: g.outSq,
				Data:   errs[n*g.filters*g.outSq:][:g.filters*g.outSq],
			}
			cols := blas32.General{
				Rows:   rows,
				Cols:   g.outSq,
				Stride: g.outSq,
				Data:   make([]float32, rows*g.outSq),
			}
			blas32.Gemm(blas.Trans, blas.NoTrans, 1, w, e, 0, cols)

			image := out[n*g.planes*g.imageSq:][:g.planes*g.imageSq]
			clear(image)
			for p := 0; p < g.planes; p++ {
				plane := image[p*g.imageSq:][:g.imageSq]
				for u := 0; u < g.fsize; u++ {
					for v := 0; v < g.fsize; v++ {
						row := cols.Data[((p*g.fsize+u)*g.fsize+v)*g.outSq:][:g.outSq]
						for oy := 0; oy < g.out; oy++ {
							y := oy + u - g.half
							if y < 0 || y >= g.image {
								continue
							}
							for ox := 0; ox < g.out; ox++ {
								x := ox + v - g.half
								if x < 0 || x >= g.image {
									continue
								}
								plane[y*g.image+x] += row[oy*g.out+ox]
							}
						}
					}
				}
			}
		},
	}
}
