package common

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

const CategoryForex = "FX"

type SymbolInfo struct {
	Symbol         string      `json:"symbol"`
	Description    string      `json:"description,omitempty"`
	Category       string      `json:"category"`
	Currency       string      `json:"currency"`
	CurrencyProfit string      `json:"currency_profit"`
	Precision      int         `json:"precision"`
	TickSize       fixed.Point `json:"tick_size"`
	TickValue      fixed.Point `json:"tick_value"`
	ContractSize   fixed.Point `json:"contract_size"`
	LotMin         fixed.Point `json:"lot_min"`
	LotMax         fixed.Point `json:"lot_max"`
	LotStep        fixed.Point `json:"lot_step"`
	Leverage       fixed.Point `json:"leverage"`
	Ask            fixed.Point `json:"ask"`
	Bid            fixed.Point `json:"bid"`
}

func (s SymbolInfo) IsForex() bool {
	return s.Category == CategoryForex
}

type TradingWindow struct {
	Day  time.Weekday  `json:"day"`
	From time.Duration `json:"from"`
	To   time.Duration `json:"to"`
}

type TradingHours struct {
	Symbol  string          `json:"symbol"`
	Quotes  []TradingWindow `json:"quotes"`
	Trading []TradingWindow `json:"trading"`
}

// IsTradable reports whether t falls into one of the trading windows.
func (h TradingHours) IsTradable(t time.Time) bool {
	t = t.UTC()
	since := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	for _, w := range h.Trading {
		if w.Day == t.Weekday() && since >= w.From && since < w.To {
			return true
		}
	}
	return false
}
