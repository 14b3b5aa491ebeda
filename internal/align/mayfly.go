package align

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the Mayfly library to conform to the Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization.
//
// The library takes a single scalar bound for every dimension, so the search
// runs in the unit cube and each position is rescaled to [lower[i], upper[i]]
// before it reaches eval.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	scaled := make([]float64, dim)
	toBounds := func(x []float64) []float64 {
		for i := 0; i < dim; i++ {
			u := x[i]
			if u < 0 {
				u = 0
			} else if u > 1 {
				u = 1
			}
			scaled[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return scaled
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(x []float64) float64 {
		return eval(toBounds(x))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, falling back to the box centre", "error", err)
		centre := make([]float64, dim)
		for i := range centre {
			centre[i] = 0.5
		}
		best := append([]float64(nil), toBounds(centre)...)
		return best, eval(best)
	}

	best := append([]float64(nil), toBounds(result.GlobalBest.Position)...)
	return best, result.GlobalBest.Cost
}
