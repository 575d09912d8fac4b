package duckdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
)

func TestDuckdbReader_ReadCandles(t *testing.T) {
	ctx := context.Background()
	reader := NewReader("")
	require.NoError(t, reader.Connect(ctx))
	defer reader.Close()

	db := reader.DB()
	db.SetMaxOpenConns(1)
	_, err := db.ExecContext(ctx, `CREATE TABLE candles (
		symbol VARCHAR, timeframe VARCHAR, ts TIMESTAMP,
		open DOUBLE, high DOUBLE, low DOUBLE, close DOUBLE, volume DOUBLE)`)
	require.NoError(t, err)

	t0 := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := db.ExecContext(ctx, `INSERT INTO candles VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			"EURUSD", "1h", t0.Add(time.Duration(i)*time.Hour), 1.1, 1.2, 1.0, 1.15, 10.0)
		require.NoError(t, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO candles VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		"EURUSD", "1d", t0, 1.1, 1.2, 1.0, 1.15, 10.0)
	require.NoError(t, err)

	candles, err := reader.ReadCandles(ctx, "EURUSD", common.TimeframeH1, t0.Add(time.Hour), t0.Add(24*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, t0.Add(time.Hour), candles[0].Date)
	assert.Equal(t, "1.15", candles[0].Close.String())
	assert.Equal(t, "EURUSD", candles[0].Symbol)

	candles, err = reader.ReadCandles(ctx, "EURUSD", common.TimeframeH1, t0.Add(5*time.Hour), t0.Add(24*time.Hour), 3)
	require.NoError(t, err)
	assert.Empty(t, candles)

	_, err = reader.ReadCandles(ctx, "EURUSD", common.TimeframeH1, t0, t0, 0)
	assert.ErrorIs(t, err, datasource.ErrInvalidLimit)
}
