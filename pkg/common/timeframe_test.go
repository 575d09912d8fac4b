package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonTimeframe_Parse(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, TimeframeH1, tf)
	assert.Equal(t, 60, tf.Minutes())
	assert.Equal(t, time.Hour, tf.Duration())

	_, err = ParseTimeframe("2h")
	assert.Error(t, err)
}

func TestCommonTimeframe_FromMinutes(t *testing.T) {
	tf, err := TimeframeFromMinutes(240)
	require.NoError(t, err)
	assert.Equal(t, TimeframeH4, tf)

	_, err = TimeframeFromMinutes(7)
	assert.Error(t, err)
}

func TestCommonTimeframe_End(t *testing.T) {
	start := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), TimeframeMN1.End(start))
	assert.Equal(t, start.Add(15*time.Minute), TimeframeM15.End(start))
}

func TestCommonTradingHours_IsTradable(t *testing.T) {
	h := TradingHours{
		Symbol: "EURUSD",
		Trading: []TradingWindow{
			{Day: time.Monday, From: 0, To: 24 * time.Hour},
			{Day: time.Friday, From: 0, To: 21 * time.Hour},
		},
	}

	assert.True(t, h.IsTradable(time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)))
	assert.False(t, h.IsTradable(time.Date(2024, time.June, 7, 22, 0, 0, 0, time.UTC)))
	assert.False(t, h.IsTradable(time.Date(2024, time.June, 8, 12, 0, 0, 0, time.UTC)))
}
