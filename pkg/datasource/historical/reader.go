package historical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// BinaryCandle is the on-disk record, native byte order, sorted by TimeStamp.
type BinaryCandle struct {
	TimeStamp int64 // unix nanoseconds of the bar start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

func (b BinaryCandle) ToCandle(symbol string) common.Candle {
	return common.Candle{
		Symbol: symbol,
		Open:   fixed.FromFloat64(b.Open),
		High:   fixed.FromFloat64(b.High),
		Low:    fixed.FromFloat64(b.Low),
		Close:  fixed.FromFloat64(b.Close),
		Volume: fixed.FromFloat64(b.Volume),
		Date:   time.Unix(0, b.TimeStamp).UTC(),
	}
}

// CandleReader serves one symbol and timeframe from a candle file.
type CandleReader struct {
	source    *Source[BinaryCandle]
	symbol    string
	timeframe common.Timeframe
}

var _ datasource.CandleSource = (*CandleReader)(nil)

func NewCandleReader(source *Source[BinaryCandle], symbol string, tf common.Timeframe) *CandleReader {
	return &CandleReader{
		source:    source,
		symbol:    symbol,
		timeframe: tf,
	}
}

func (r *CandleReader) ReadCandles(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	if limit <= 0 {
		return nil, datasource.ErrInvalidLimit
	}
	if symbol != r.symbol || tf != r.timeframe {
		return nil, fmt.Errorf("file holds %s %s, requested %s %s", r.symbol, r.timeframe, symbol, tf)
	}

	idx, err := r.lookupStartIndex(from.UnixNano())
	if err != nil {
		return nil, err
	}

	var candles []common.Candle
	var entry BinaryCandle
	for ; len(candles) < limit; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.source.Read(idx, &entry); err != nil {
			if errors.Is(err, ErrOutOfRange) {
				break
			}
			return nil, fmt.Errorf("error reading entry at index %d: %w", idx, err)
		}
		if entry.TimeStamp >= to.UnixNano() {
			break
		}
		candles = append(candles, entry.ToCandle(r.symbol))
	}
	return candles, nil
}

// lookupStartIndex finds the first entry at or after from, or the entry
// count when every entry is older.
func (r *CandleReader) lookupStartIndex(from int64) (int64, error) {
	entryCount, err := r.source.EntryCount()
	if err != nil {
		return 0, fmt.Errorf("error getting entry count: %w", err)
	}

	var entry BinaryCandle

	low := int64(0)
	high := entryCount - 1

	for low <= high {
		mid := (low + high) / 2

		if err := r.source.Read(mid, &entry); err != nil {
			return 0, fmt.Errorf("error reading entry at index %d: %w", mid, err)
		}

		if entry.TimeStamp < from {
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return low, nil
}
