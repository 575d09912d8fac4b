package synthetic

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

const (
	stepsPerCandle = 16
	hoursPerYear   = 365.25 * 24
)

// CandleSource generates a geometric brownian motion price path. The path
// starts at the first requested date and is memoized, so repeated reads and
// any paging of the same range return the same candles for the same seed.
type CandleSource struct {
	rng       *rand.Rand
	mu        float64
	sigma     float64
	precision int

	lock      sync.Mutex
	price     float64
	next      time.Time
	timeframe common.Timeframe
	candles   []common.Candle
}

// NewCandleSource creates a generator with annualized drift mu and volatility sigma.
func NewCandleSource(seed int64, startPrice, mu, sigma float64, precision int) *CandleSource {
	return &CandleSource{
		rng:       rand.New(rand.NewSource(seed)), // #nosec G404
		mu:        mu,
		sigma:     sigma,
		precision: precision,
		price:     startPrice,
	}
}

// NewEURUSDCandleSource uses a typical EURUSD starting price and volatility.
func NewEURUSDCandleSource(seed int64) *CandleSource {
	const (
		eurUsdStartPrice = 1.0550
		eurUsdDrift      = 0.0
		eurUsdVolatility = 0.08
	)
	return NewCandleSource(seed, eurUsdStartPrice, eurUsdDrift, eurUsdVolatility, 5)
}

func (s *CandleSource) ReadCandles(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	if limit <= 0 {
		return nil, datasource.ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.next.IsZero() {
		s.next = from
		s.timeframe = tf
	}

	for s.next.Before(to) && s.countFrom(from) < limit {
		s.candles = append(s.candles, s.generate(symbol))
	}
	return datasource.Window(s.candles, from, to, limit), nil
}

func (s *CandleSource) countFrom(from time.Time) int {
	n := 0
	for i := len(s.candles) - 1; i >= 0 && !s.candles[i].Date.Before(from); i-- {
		n++
	}
	return n
}

func (s *CandleSource) generate(symbol string) common.Candle {
	dt := s.timeframe.Duration().Hours() / hoursPerYear / stepsPerCandle
	drift := (s.mu - 0.5*s.sigma*s.sigma) * dt
	diffusion := s.sigma * math.Sqrt(dt)

	open := s.price
	high, low := open, open
	for i := 0; i < stepsPerCandle; i++ {
		s.price *= math.Exp(drift + diffusion*s.rng.NormFloat64())
		high = math.Max(high, s.price)
		low = math.Min(low, s.price)
	}

	candle := common.Candle{
		Symbol: symbol,
		Open:   s.round(open),
		High:   s.round(high),
		Low:    s.round(low),
		Close:  s.round(s.price),
		Volume: fixed.FromFloat64(100 * math.Exp(0.5*s.rng.NormFloat64())).Round(2),
		Date:   s.next,
	}
	s.next = s.timeframe.End(s.next)
	return candle
}

func (s *CandleSource) round(v float64) fixed.Point {
	return fixed.FromFloat64(v).Round(s.precision)
}
