package historical

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

func TestWriteCandles_RoundTrip(t *testing.T) {
	candles := []common.Candle{
		{Open: fixed.FromFloat64(1.1), High: fixed.FromFloat64(1.102), Low: fixed.FromFloat64(1.099), Close: fixed.FromFloat64(1.101), Volume: fixed.FromInt(7, 0), Date: t0},
		{Open: fixed.FromFloat64(1.101), High: fixed.FromFloat64(1.103), Low: fixed.FromFloat64(1.1), Close: fixed.FromFloat64(1.1025), Volume: fixed.FromInt(9, 0), Date: t0.Add(time.Hour)},
	}

	path := filepath.Join(t.TempDir(), "candles.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteCandles(f, candles))
	require.NoError(t, f.Close())

	source := NewSource[BinaryCandle](path)
	require.NoError(t, source.Open())
	defer source.Close()

	got, err := NewCandleReader(source, "EURUSD", common.TimeframeH1).
		ReadCandles(context.Background(), "EURUSD", common.TimeframeH1, t0, t0.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.1025", got[1].Close.String())
	assert.True(t, got[1].Date.Equal(t0.Add(time.Hour)))
}
