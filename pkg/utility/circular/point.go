package circular

import (
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// PointBuffer is a rolling window that maintains mean and deviation
// incrementally on every push.
type PointBuffer struct {
	b *Buffer[fixed.Point]

	mean       fixed.Point
	stdDev     fixed.Point
	sum        fixed.Point
	sumSquares fixed.Point
	variance   fixed.Point
}

func NewPointBuffer(capacity uint) *PointBuffer {
	return &PointBuffer{
		b: NewBuffer[fixed.Point](capacity),
	}
}

func (p *PointBuffer) PushUpdate(v fixed.Point) {
	if p.b.IsFull() {
		evicted := p.b.Last()
		p.sum = p.sum.Sub(evicted)
		p.sumSquares = p.sumSquares.Sub(evicted.Mul(evicted))
	}
	p.b.Push(v)
	p.sum = p.sum.Add(v)
	p.sumSquares = p.sumSquares.Add(v.Mul(v))

	n := int(p.b.Size())
	p.mean = p.sum.DivInt(n)
	p.variance = p.sumSquares.DivInt(n).Sub(p.mean.Mul(p.mean))
	if p.variance.Gt(fixed.Zero) {
		p.stdDev = p.variance.Sqrt()
	} else {
		p.stdDev = fixed.Zero
	}
}

func (p *PointBuffer) IsFull() bool         { return p.b.IsFull() }
func (p *PointBuffer) Mean() fixed.Point     { return p.mean }
func (p *PointBuffer) Sum() fixed.Point      { return p.sum }
func (p *PointBuffer) StdDev() fixed.Point   { return p.stdDev }
func (p *PointBuffer) Variance() fixed.Point { return p.variance }
