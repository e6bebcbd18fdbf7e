package backprop

import (
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/gpu"
)

const scatterWorkgroupSize = 64

// scatter gives one work-item a whole (image, plane) pair. It walks the output
// positions and adds weight times error into every upstream position the
// filter covers, so no work-item reads another's output.
func scatterKernel(key string, g geometry, batchSize int) *gpu.Kernel {
	total := batchSize * g.planes
	return &gpu.Kernel{
		Name:          "backprop_errors_scatter",
		Key:           key,
		WGSL:          scatterWGSL(g, total),
		WorkgroupSize: scatterWorkgroupSize,
		Groups:        groupsFor(total, scatterWorkgroupSize),
		Run: func(group int, args [][]float32) {
			errs, weights, out := args[0], args[1], args[2]
			end := min((group+1)*scatterWorkgroupSize, total)
			for id := group * scatterWorkgroupSize; id < end; id++ {
				n := id / g.planes
				p := id % g.planes
				plane := out[id*g.imageSq:][:g.imageSq]
				clear(plane)
				for f := 0; f < g.filters; f++ {
					for oy := 0; oy < g.out; oy++ {
						for ox := 0; ox < g.out; ox++ {
							e := errs[g.errorIndex(n, f, oy, ox)]
							for u := 0; u < g.fsize; u++ {
								y := oy + u - g.half
								if y < 0 || y >= g.image {
									continue
								}
								for v := 0; v < g.fsize; v++ {
									x := ox + v - g.half
									if x < 0 || x >= g.image {
										continue
									}
									plane[y*g.image+x] += weights[g.weightIndex(f, p, u, v)] * e
								}
							}
						}
					}
				}
			}
		},
	}
}

func scatterWGSL(g geometry, total int) string {
	return g.wgslHeader() + fmt.Sprintf(`const TOTAL: u32 = %du;

@compute @workgroup_size(%d)
fn main(@builtin(local_invocation_index) lid: u32,
        @builtin(workgroup_id) wid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let id = (wid.x + wid.y * nwg.x) * %du + lid;
    if (id >= TOTAL) {
        return;
    }
    let n = i32(id) / PLANES;
    let p = i32(id) %% PLANES;
    let base = i32(id) * IMAGE_SQ;

    for (var i: i32 = 0; i < IMAGE_SQ; i++) {
        output[base + i] = 0.0;
    }
    for (var f: i32 = 0; f < FILTERS; f++) {
        for (var oy: i32 = 0; oy < OUT; oy++) {
            for (var ox: i32 = 0; ox < OUT; ox++) {
                let e = errors[((n * FILTERS + f) * OUT + oy) * OUT + ox];
                for (var u: i32 = 0; u < FSIZE; u++) {
                    let y = oy + u - HALF;
                    if (y < 0 || y >= IMAGE) {
                        continue;
                    }
                    for (var v: i32 = 0; v < FSIZE; v++) {
                        let x = ox + v - HALF;
                        if (x < 0 || x >= IMAGE) {
                            continue;
                        }
                        output[base + y * IMAGE + x] += weights[((f * PLANES + p) * FSIZE + u) * FSIZE + v] * e;
                    }
                }
            }
        }
    }
}
`, total, scatterWorkgroupSize, scatterWorkgroupSize)
}
