package backprop

import (
	"fmt"

	"github.com/fxnlabs/convbackprop/internal/gpu"
)

const cachedWorkgroupSize = 256

// cached gathers like naive, but one work-group owns one (image, plane) pair and
// stages each filter's error plane and weight slice in work-group memory before
// its work-items read them.
func cachedKernel(key string, g geometry, batchSize int) *gpu.Kernel {
	groups := batchSize * g.planes
	return &gpu.Kernel{
		Name:          "backprop_errors_cached",
		Key:           key,
		WGSL:          cachedWGSL(g, groups),
		WorkgroupSize: cachedWorkgroupSize,
		Groups:        groups,
		Run: func(group int, args [][]float32) {
			errs, weights, out := args[0], args[1], args[2]
			n := group / g.planes
			p := group % g.planes

			errPlane := make([]float32, g.outSq)
			filter := make([]float32, g.fsizeSq)
			acc := make([]float32, g.imageSq)
			for f := 0; f < g.filters; f++ {
				copy(errPlane, errs[g.errorIndex(n, f, 0, 0):][:g.outSq])
				copy(filter, weights[g.weightIndex(f, p, 0, 0):][:g.fsizeSq])

				for pix := 0; pix < g.imageSq; pix++ {
					y := pix / g.image
					x := pix % g.image
					sum := acc[pix]
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
							sum += filter[u*g.fsize+v] * errPlane[oy*g.out+ox]
						}
					}
					acc[pix] = sum
				}
			}
			copy(out[group*g.imageSq:][:g.imageSq], acc)
		},
	}
}

func cachedWGSL(g geometry, groups int) string {
	perItem := groupsFor(g.imageSq, cachedWorkgroupSize)
	return g.wgslHeader() + fmt.Sprintf(`const GROUPS: u32 = %du;
const WG: i32 = %d;
const PER_ITEM: i32 = %d;

var<workgroup> errPlane: array<f32, %d>;
var<workgroup> filt: array<f32, %d>;

@compute @workgroup_size(%d)
fn main(@builtin(local_invocation_index) lid: u32,
        @builtin(workgroup_id) wid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
    let gid = wid.x + wid.y * nwg.x;
    if (gid >= GROUPS) {
        return;
    }
    let n = i32(gid) / PLANES;
    let p = i32(gid) %% PLANES;
    let l = i32(lid);

    var acc: array<f32, %d>;
    for (var f: i32 = 0; f < FILTERS; f++) {
        for (var i: i32 = l; i < OUT_SQ; i += WG) {
            errPlane[i] = errors[(n * FILTERS + f) * OUT_SQ + i];
        }
        for (var i: i32 = l; i < FSIZE_SQ; i += WG) {
            filt[i] = weights[(f * PLANES + p) * FSIZE_SQ + i];
        }
        workgroupBarrier();

        for (var k: i32 = 0; k < PER_ITEM; k++) {
            let pix = l + k * WG;
            if (pix < IMAGE_SQ) {
                let y = pix / IMAGE;
                let x = pix %% IMAGE;
                var sum = acc[k];
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
                        sum += filt[u * FSIZE + v] * errPlane[oy * OUT + ox];
                    }
                }
                acc[k] = sum;
            }
        }
        workgroupBarrier();
    }

    for (var k: i32 = 0; k < PER_ITEM; k++) {
        let pix = l + k * WG;
        if (pix < IMAGE_SQ) {
            output[(n * PLANES + p) * IMAGE_SQ + pix] = acc[k];
        }
    }
}
`, groups, cachedWorkgroupSize, perItem, g.outSq, g.fsizeSq, cachedWorkgroupSize, perItem)
}

// cachedFits reports whether one error plane and one filter slice fit in the
// work-group memory of a device.
func cachedFits(g geometry, workgroupMemory int) bool {
	return 4*(g.outSq+g.fsizeSq) <= workgroupMemory
}
