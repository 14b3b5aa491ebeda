package diff

import (
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Absolute difference kernel.
//
// For every pixel the kernel computes |A[c]-B[c]| for c in R,G,B (alpha is
// never read), accumulates the per-channel sums and writes the heatmap pixel
// min(255, HeatmapGain*diff) with an opaque alpha.
//
// Sums are integers, so the parallel backend returns exactly what the scalar
// one does regardless of how rows are split.

// Backend indicates which kernel implementation is active.
type Backend int

const (
	BackendScalar   Backend = iota // single goroutine
	BackendParallel                // rows split across GOMAXPROCS workers
)

func (b Backend) String() string {
	switch b {
	case BackendScalar:
		return "scalar"
	case BackendParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// HeatmapGain is the contrast boost applied to the difference image.
const HeatmapGain = 3

// parallelMinPixels is the region size below which the parallel backend
// falls back to the scalar kernel.
const parallelMinPixels = 256 * 256

// ActiveBackend reports which backend was selected at initialization.
var ActiveBackend Backend

// absDiff is the runtime-dispatched kernel.
var absDiff func(a, b, heat []uint8, strideA, strideB, strideH, width, height int) [3]uint64

func init() {
	workers := runtime.GOMAXPROCS(0)
	if workers > 1 {
		ActiveBackend = BackendParallel
		absDiff = absDiffParallel
		slog.Debug("Diff kernel initialized", "backend", "parallel", "workers", workers)
	} else {
		ActiveBackend = BackendScalar
		absDiff = absDiffScalar
		slog.Debug("Diff kernel initialized", "backend", "scalar", "reason", "single CPU")
	}
}

// absDiffScalar is the portable reference kernel. heat may be nil when no
// heatmap is wanted.
func absDiffScalar(a, b, heat []uint8, strideA, strideB, strideH, width, height int) [3]uint64 {
	var sr, sg, sb uint64

	for y := 0; y < height; y++ {
		ia := y * strideA
		ib := y * strideB
		ih := y * strideH

		for x := 0; x < width; x++ {
			dr := absU8(a[ia+0], b[ib+0])
			dg := absU8(a[ia+1], b[ib+1])
			db := absU8(a[ia+2], b[ib+2])

			sr += uint64(dr)
			sg += uint64(dg)
			sb += uint64(db)

			if heat != nil {
				heat[ih+0] = boost(dr)
				heat[ih+1] = boost(dg)
				heat[ih+2] = boost(db)
				heat[ih+3] = 0xff
			}

			ia += 4
			ib += 4
			ih += 4
		}
	}

	return [3]uint64{sr, sg, sb}
}

// paddedSums keeps each worker's accumulator on its own cache line.
type paddedSums struct {
	sums [3]uint64
	_    cpu.CacheLinePad
}

// absDiffParallel splits rows into contiguous bands, one per worker.
func absDiffParallel(a, b, heat []uint8, strideA, strideB, strideH, width, height int) [3]uint64 {
	workers := runtime.GOMAXPROCS(0)
	if width*height < parallelMinPixels || workers < 2 || height < 2 {
		return absDiffScalar(a, b, heat, strideA, strideB, strideH, width, height)
	}
	if workers > height {
		workers = height
	}

	partial := make([]paddedSums, workers)
	band := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		y0 := w * band
		if y0 >= height {
			break
		}
		y1 := min(y0+band, height)

		var h []uint8
		if heat != nil {
			h = heat[y0*strideH:]
		}

		wg.Add(1)
		go func(slot *paddedSums, a, b, h []uint8, rows int) {
			defer wg.Done()
			slot.sums = absDiffScalar(a, b, h, strideA, strideB, strideH, width, rows)
		}(&partial[w], a[y0*strideA:], b[y0*strideB:], h, y1-y0)
	}
	wg.Wait()

	var total [3]uint64
	for i := range partial {
		for c := 0; c < 3; c++ {
			total[c] += partial[i].sums[c]
		}
	}
	return total
}

func absU8(x, y uint8) uint8 {
	if x > y {
		return x - y
	}
	return y - x
}

// boost applies the heatmap gain with saturation instead of wraparound.
func boost(d uint8) uint8 {
	v := int(d) * HeatmapGain
	if v > 255 {
		return 255
	}
	return uint8(v)
}
