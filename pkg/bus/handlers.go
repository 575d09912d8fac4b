package bus

import (
	"context"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

type EventHandler[T any] = func(context.Context, T)

type TickEventHandler EventHandler[common.Tick]
type CandleEventHandler EventHandler[common.Candle]
type BalanceEventHandler EventHandler[common.AccountBalance]
type PositionOpenEventHandler EventHandler[common.Position]
type PositionUpdateEventHandler EventHandler[common.Position]
type PositionCloseEventHandler EventHandler[common.Position]
type PositionRejectEventHandler EventHandler[common.Position]
type NewsEventHandler EventHandler[common.News]
type DisconnectEventHandler EventHandler[common.Disconnect]

func MergeHandlers[T any](handlers ...EventHandler[T]) EventHandler[T] {
	return func(ctx context.Context, event T) {
		for _, handler := range handlers {
			if handler != nil {
				handler(ctx, event)
			}
		}
	}
}
