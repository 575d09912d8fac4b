package sandbox

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// DecomposeCandlestick replays one candle as four ticks: open at the bar
// start, high after a quarter of the bar, low after half of it and close one
// second before the bar ends. Spread is given in ticks for forex symbols and
// in price units otherwise.
func DecomposeCandlestick(candle common.Candle, tf common.Timeframe, spread fixed.Point, info common.SymbolInfo) [4]common.Tick {
	if info.IsForex() {
		spread = spread.Mul(info.TickSize)
	}

	start := candle.Date
	length := tf.End(start).Sub(start)

	at := [4]time.Time{
		start,
		start.Add(length / 4),
		start.Add(length / 2),
		start.Add(length - time.Second),
	}
	bids := [4]fixed.Point{candle.Open, candle.High, candle.Low, candle.Close}

	var ticks [4]common.Tick
	for i := range ticks {
		ticks[i] = common.Tick{
			Symbol: candle.Symbol,
			Bid:    bids[i],
			Ask:    bids[i].Add(spread),
			Date:   at[i],
		}
	}
	return ticks
}
