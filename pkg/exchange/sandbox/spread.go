package sandbox

import (
	"math/rand"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

const spreadSteps = 10000

// SpreadGenerator draws spreads uniformly from [min, max]. The same seed
// yields the same sequence.
type SpreadGenerator struct {
	rng      *rand.Rand
	min, max fixed.Point
}

func NewSpreadGenerator(seed int64, min, max fixed.Point) *SpreadGenerator {
	if max.Lt(min) {
		min, max = max, min
	}
	return &SpreadGenerator{
		rng: rand.New(rand.NewSource(seed)), // #nosec G404
		min: min,
		max: max,
	}
}

func (g *SpreadGenerator) Next() fixed.Point {
	if g.min.Eq(g.max) {
		return g.min
	}
	ratio := fixed.FromInt64(g.rng.Int63n(spreadSteps+1), 4)
	return g.min.Add(g.max.Sub(g.min).Mul(ratio))
}
