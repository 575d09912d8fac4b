package sandbox

import (
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

type Option func(*Simulator)

// CommissionHandler returns the commission charged when a trade closes.
type CommissionHandler func(common.SymbolInfo, common.TradeUpdate) fixed.Point

func WithSymbols(symbols ...common.SymbolInfo) Option {
	return func(s *Simulator) {
		for _, symbol := range symbols {
			s.symbols[normalize(symbol.Symbol)] = symbol
		}
	}
}

func WithCommissionHandler(commissionHandler CommissionHandler) Option {
	return func(s *Simulator) {
		s.commissionHandler = commissionHandler
	}
}

// WithTimeframe sets the timeframe of the replayed candles, which is the only
// timeframe chart queries can answer.
func WithTimeframe(tf common.Timeframe) Option {
	return func(s *Simulator) {
		s.timeframe = tf
	}
}

// WithHistorySize bounds the number of candles kept per symbol for chart queries.
func WithHistorySize(size uint) Option {
	return func(s *Simulator) {
		s.historySize = size
	}
}

// WithFirstOrder sets the first order number handed out.
func WithFirstOrder(order int64) Option {
	return func(s *Simulator) {
		s.orderSeq = order - 1
	}
}
