package broker

import (
	"context"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/exchange"
)

// Source reads candle history from a connected backend.
type Source struct {
	backend exchange.Backend
}

var _ datasource.CandleSource = (*Source)(nil)

func NewSource(backend exchange.Backend) *Source {
	return &Source{backend: backend}
}

func (s *Source) ReadCandles(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	if limit <= 0 {
		return nil, datasource.ErrInvalidLimit
	}
	if !from.Before(to) {
		return nil, nil
	}

	// the broker caps a single response, so the range is narrowed to one page
	end := from.Add(time.Duration(limit) * tf.Duration())
	if tf == common.TimeframeMN1 || end.After(to) || end.Before(from) {
		end = to
	}

	candles, err := s.backend.GetChartRange(ctx, symbol, tf, from, end)
	if err != nil {
		return nil, err
	}
	for i := range candles {
		candles[i].Symbol = symbol
	}
	return datasource.Window(candles, from, to, limit), nil
}
