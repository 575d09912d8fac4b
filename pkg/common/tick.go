package common

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

type Tick struct {
	Ask       fixed.Point `json:"ask"`
	Bid       fixed.Point `json:"bid"`
	AskVolume fixed.Point `json:"ask_volume"`
	BidVolume fixed.Point `json:"bid_volume"`

	Symbol string    `json:"symbol,omitempty"`
	Date   time.Time `json:"ts"`
}

func (t Tick) Spread() fixed.Point {
	return t.Ask.Sub(t.Bid)
}
