package common

import (
	"fmt"
	"strings"
	"time"
)

type Timeframe string

const (
	TimeframeM1  Timeframe = "1m"
	TimeframeM5  Timeframe = "5m"
	TimeframeM15 Timeframe = "15m"
	TimeframeM30 Timeframe = "30m"
	TimeframeH1  Timeframe = "1h"
	TimeframeH4  Timeframe = "4h"
	TimeframeD1  Timeframe = "1d"
	TimeframeW1  Timeframe = "1w"
	TimeframeMN1 Timeframe = "1mo"
)

var timeframeMinutes = map[Timeframe]int{
	TimeframeM1:  1,
	TimeframeM5:  5,
	TimeframeM15: 15,
	TimeframeM30: 30,
	TimeframeH1:  60,
	TimeframeH4:  240,
	TimeframeD1:  1440,
	TimeframeW1:  10080,
	TimeframeMN1: 43200,
}

func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeMinutes[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

func TimeframeFromMinutes(minutes int) (Timeframe, error) {
	for tf, m := range timeframeMinutes {
		if m == minutes {
			return tf, nil
		}
	}
	return "", fmt.Errorf("unknown period %d", minutes)
}

// Minutes is the broker period code of the timeframe.
func (tf Timeframe) Minutes() int {
	return timeframeMinutes[tf]
}

// Duration is the nominal bar length, a month counts as 30 days.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(timeframeMinutes[tf]) * time.Minute
}

// End returns the exclusive end of the bar starting at start.
func (tf Timeframe) End(start time.Time) time.Time {
	if tf == TimeframeMN1 {
		return start.AddDate(0, 1, 0)
	}
	return start.Add(tf.Duration())
}

func (tf Timeframe) String() string {
	return string(tf)
}
