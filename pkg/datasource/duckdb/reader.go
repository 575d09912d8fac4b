package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

const candlesQuery = `
	SELECT ts, open, high, low, close, volume
	FROM candles
	WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
	ORDER BY ts
	LIMIT ?`

// Reader serves candles from a DuckDB database with a candles table
// (symbol, timeframe, ts, open, high, low, close, volume).
type Reader struct {
	dataSourceName string
	db             *sql.DB
}

var _ datasource.CandleSource = (*Reader)(nil)

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
	}
}

func (r *Reader) Connect(ctx context.Context) error {
	db, err := sql.Open("duckdb", r.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open duckdb %q: %w", r.dataSourceName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("unable to reach duckdb %q: %w", r.dataSourceName, err)
	}
	r.db = db
	return nil
}

func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// DB exposes the connection for schema setup and imports.
func (r *Reader) DB() *sql.DB {
	return r.db
}

func (r *Reader) ReadCandles(ctx context.Context, symbol string, tf common.Timeframe, from, to time.Time, limit int) ([]common.Candle, error) {
	if limit <= 0 {
		return nil, datasource.ErrInvalidLimit
	}

	rows, err := r.db.QueryContext(ctx, candlesQuery, symbol, string(tf), from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying candles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candles []common.Candle
	for rows.Next() {
		var ts time.Time
		var open, high, low, closePrice, volume float64
		if err := rows.Scan(&ts, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		candles = append(candles, common.Candle{
			Symbol: symbol,
			Open:   fixed.FromFloat64(open),
			High:   fixed.FromFloat64(high),
			Low:    fixed.FromFloat64(low),
			Close:  fixed.FromFloat64(closePrice),
			Volume: fixed.FromFloat64(volume),
			Date:   ts.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}
	return candles, nil
}
