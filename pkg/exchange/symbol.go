package exchange

import (
	"strings"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var (
	pipJpy   = fixed.FromInt(1, 2)
	pipForex = fixed.FromInt(1, 4)
)

// PipSize is the price increment profits are counted in. Non-forex
// instruments count in whole price units.
func PipSize(info common.SymbolInfo) fixed.Point {
	if !info.IsForex() {
		return fixed.One
	}
	if strings.Contains(strings.ToUpper(info.Symbol), "JPY") {
		return pipJpy
	}
	return pipForex
}

// PipValue is the account value of a one pip move for the given volume.
func PipValue(info common.SymbolInfo, volume fixed.Point) fixed.Point {
	return volume.Mul(info.ContractSize).Mul(PipSize(info))
}

// Pips measures the favourable price move of a position type from open to closePrice.
func Pips(info common.SymbolInfo, pt common.PositionType, open, closePrice fixed.Point) fixed.Point {
	diff := closePrice.Sub(open)
	if !pt.IsLong() {
		diff = diff.Neg()
	}
	return diff.Div(PipSize(info))
}
