package common

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// Candle is one bar of a Timeframe, Date is the bar start in UTC.
type Candle struct {
	Symbol string      `json:"symbol,omitempty"`
	Open   fixed.Point `json:"open"`
	High   fixed.Point `json:"high"`
	Low    fixed.Point `json:"low"`
	Close  fixed.Point `json:"close"`
	Volume fixed.Point `json:"volume"`
	Date   time.Time   `json:"ts"`
}
