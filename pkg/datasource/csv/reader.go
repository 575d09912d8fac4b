package csv

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// candleRow is one line of a candle export: time,open,high,low,close,volume.
// Time is RFC 3339 or unix seconds.
type candleRow struct {
	Time   string `csv:"time"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Volume string `csv:"volume"`
}

func (r candleRow) toCandle(symbol string) (common.Candle, error) {
	date, err := parseTime(r.Time)
	if err != nil {
		return common.Candle{}, err
	}

	candle := common.Candle{Symbol: symbol, Date: date}
	for _, field := range []struct {
		dst *fixed.Point
		src string
	}{
		{&candle.Open, r.Open},
		{&candle.High, r.High},
		{&candle.Low, r.Low},
		{&candle.Close, r.Close},
		{&candle.Volume, r.Volume},
	} {
		if field.src == "" {
			continue
		}
		if *field.dst, err = fixed.Parse(field.src); err != nil {
			return common.Candle{}, fmt.Errorf("invalid price %q: %w", field.src, err)
		}
	}
	return candle, nil
}

func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Reader serves candles of one symbol and timeframe loaded from a CSV export.
type Reader struct {
	symbol    string
	timeframe common.Timeframe
	candles   []common.Candle
}

var _ datasource.CandleSource = (*Reader)(nil)

func Load(in io.Reader, symbol string, tf common.Timeframe) (*Reader, error) {
	var rows []candleRow
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, fmt.Errorf("unable to parse candles: %w", err)
	}

	candles := make([]common.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := row.toCandle(symbol)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		candles = append(candles, candle)
	}
	slices.SortStableFunc(candles, func(a, b common.Candle) int { return a.Date.Compare(b.Date) })

	return &Reader{symbol: symbol, timeframe: tf, candles: candles}, nil
}

func LoadFile(path, symbol string, tf common.Timeframe) (*Reader, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Load(f, symbol, tf)
}

func (r *Reader) ReadCandles(_ context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	if limit <= 0 {
		return nil, datasource.ErrInvalidLimit
	}
	if symbol != r.symbol || tf != r.timeframe {
		return nil, fmt.Errorf("file holds %s %s, requested %s %s", r.symbol, r.timeframe, symbol, tf)
	}
	return datasource.Window(r.candles, from, to, limit), nil
}

// Write exports candles in the format Load reads.
func Write(out io.Writer, candles []common.Candle) error {
	rows := make([]candleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, candleRow{
			Time:   c.Date.UTC().Format(time.RFC3339),
			Open:   c.Open.String(),
			High:   c.High.String(),
			Low:    c.Low.String(),
			Close:  c.Close.String(),
			Volume: c.Volume.String(),
		})
	}
	return gocsv.Marshal(&rows, out)
}
