package common

import (
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

type AccountBalance struct {
	Balance     fixed.Point `json:"balance"`
	Credit      fixed.Point `json:"credit"`
	Equity      fixed.Point `json:"equity"`
	Margin      fixed.Point `json:"margin"`
	MarginFree  fixed.Point `json:"margin_free"`
	MarginLevel fixed.Point `json:"margin_level"`
}
