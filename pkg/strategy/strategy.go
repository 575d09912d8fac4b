package strategy

import (
	"context"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// Trader is the order surface a strategy acts on. reconcile.Engine implements it.
type Trader interface {
	OpenPosition(ctx context.Context, request common.Position) (common.Position, error)
	UpdatePosition(ctx context.Context, id string, stopLoss, takeProfit fixed.Point) error
	ClosePosition(ctx context.Context, id string) error
	Positions() []common.Position
	Balance() common.AccountBalance
}

// Strategy is the capability set the host drives. Implementations are opaque
// to the rest of the system.
type Strategy interface {
	Name() string
	Parameters() map[string]string

	// Run is called once per finished candle.
	Run(ctx context.Context, trader Trader, candle common.Candle) error

	// ShouldUpdate returns new stops for an open position, ok is false to keep the current ones.
	ShouldUpdate(ctx context.Context, position common.Position, tick common.Tick) (stopLoss, takeProfit fixed.Point, ok bool)

	ShouldClose(ctx context.Context, position common.Position, tick common.Tick) bool
}
