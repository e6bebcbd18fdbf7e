package backprop

import (
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/gpu"
)

const naiveWorkgroupSize = 256

// naive gathers: one work-item per upstream element walks every filter and
// filter offset whose output position lands in range.
func naiveKernel(key string, g geometry, batchSize int) *gpu.Kernel {
	total := batchSize * g.planes * g.imageSq
	return &gpu.Kernel{
		Name:          "backprop_errors_naive",
		Key:           key,
		WGSL:          naiveWGSL(g, total),
		WorkgroupSize: naiveWorkgroupSize,
		Groups:        groupsFor(total, naiveWorkgroupSize),
		Run: func(group int, args [][]float32) {
			errs, weights, out := args[0], args[1], args[2]
			end := min((group+1)*naiveWorkgroupSize, total)
			for id := group * naiveWorkgroupSize; id < end; id++ {
				n := id / (g.planes * g.imageSq)
				rem := id % (g.planes * g.imageSq)
				p := rem / g.imageSq
				y := (rem % g.imageSq) / g.image
				x := rem % g.image

				var sum float32
				for f := 0; f < g.filters; f++ {
					for u := 0; u < g.fsize; u++ {
						oy := y - u + g.half
						if oy < 0 || oy >= g.out {
							continue
						}
						for v := 0; v < g.fsize; v++ {
							ox := x - v + g.half
							if ox < 0 || ox >= g.out {
								continue
							}
							sum += weights[g.weightIndex(f, p, u, v)] * errs[g.errorIndex(n, f, oy, ox)]
						}
					}
				}
				out[id] = sum
			}
		},
	}
}

func naiveWGSL(g geometry, total int) string {
	return g.wgslHeader() + fmt.Sprintf(`const TOTAL: u32 = %du;

@compute @workgroup_size(%d)
fn main(@builtin(local_invocation_index) lid: u32,
        @builtin(workgroup_id) wid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let id = (wid.x + wid.y * nwg.x) * %du + lid;
    if (id >= TOTAL) {
        return;
    }
    let i = i32(id);
    let n = i / (PLANES * IMAGE_SQ);
    let rem = i %% (PLANES * IMAGE_SQ);
    let p = rem / IMAGE_SQ;
    let y = (rem %% IMAGE_SQ) / IMAGE;
    let x = rem %% IMAGE;

    var sum: f32 = 0.0;
    for (var f: i32 = 0; f < FILTERS; f++) {
        for (var u: i32 = 0; u < FSIZE; u++) {
            let oy = y - u + HALF;
            if (oy < 0 || oy >= OUT) {
                continue;
            }
            for (var v: i32 = 0; v < FSIZE; v++) {
                let ox = x - v + HALF;
                if (ox < 0 || ox >= OUT) {
                    continue;
                }
                sum += weights[((f * PLANES + p) * FSIZE + u) * FSIZE + v]
                    * errors[((n * FILTERS + f) * OUT + oy) * OUT + ox];
            }
        }
    }
    output[id] = sum;
}
`, total, naiveWorkgroupSize, naiveWorkgroupSize)
}
