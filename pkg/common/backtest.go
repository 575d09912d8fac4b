package common

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// BacktestParameters are fixed for the duration of one run.
type BacktestParameters struct {
	Symbol       string
	Timeframe    Timeframe
	StartBalance fixed.Point
	MinSpread    fixed.Point
	MaxSpread    fixed.Point
	Seed         int64
	From         time.Time
	To           time.Time
}

type BacktestResult struct {
	StartBalance  fixed.Point `json:"start_balance"`
	FinalBalance  fixed.Point `json:"final_balance"`
	TotalTrades   int         `json:"total_trades"`
	WinningTrades int         `json:"winning_trades"`
	LosingTrades  int         `json:"losing_trades"`
	WinRate       fixed.Point `json:"win_rate"`
	GrossProfit   fixed.Point `json:"gross_profit"`
	GrossLoss     fixed.Point `json:"gross_loss"`
	NetProfit     fixed.Point `json:"net_profit"`
	ProfitFactor  fixed.Point `json:"profit_factor"`
	AverageWin    fixed.Point `json:"average_win"`
	AverageLoss   fixed.Point `json:"average_loss"`
	MaxDrawdown   fixed.Point `json:"max_drawdown"`
	SharpeRatio   fixed.Point `json:"sharpe_ratio"`
	SortinoRatio  fixed.Point `json:"sortino_ratio"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
}
