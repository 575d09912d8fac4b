package datasource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

func TestDatasourceWindow(t *testing.T) {
	t0 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var candles []common.Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, common.Candle{Date: t0.Add(time.Duration(i) * time.Hour)})
	}

	cases := []struct {
		name     string
		from, to time.Time
		limit    int
		want     []int
	}{
		{"all", t0, t0.Add(24 * time.Hour), 100, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"limited", t0, t0.Add(24 * time.Hour), 3, []int{0, 1, 2}},
		{"from inclusive", t0.Add(8 * time.Hour), t0.Add(24 * time.Hour), 100, []int{8, 9}},
		{"to exclusive", t0, t0.Add(2 * time.Hour), 100, []int{0, 1}},
		{"exhausted", t0.Add(10 * time.Hour), t0.Add(24 * time.Hour), 100, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Window(candles, tc.from, tc.to, tc.limit)
			var idx []int
			for _, c := range got {
				idx = append(idx, int(c.Date.Sub(t0)/time.Hour))
			}
			assert.Equal(t, tc.want, idx)
		})
	}
}
