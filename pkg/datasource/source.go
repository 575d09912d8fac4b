package datasource

import (
	"context"
	"errors"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

var ErrInvalidLimit = errors.New("limit must be positive")

// CandleSource serves historical candles of one timeframe.
type CandleSource interface {
	// ReadCandles returns at most limit candles of symbol with from <= Date < to
	// in ascending order. An empty result means the range is exhausted.
	ReadCandles(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error)
}

// Window applies the ReadCandles contract to candles sorted by date.
func Window(candles []common.Candle, from, to time.Time, limit int) []common.Candle {
	var out []common.Candle
	for _, c := range candles {
		if c.Date.Before(from) {
			continue
		}
		if !c.Date.Before(to) || len(out) == limit {
			break
		}
		out = append(out, c)
	}
	return out
}
