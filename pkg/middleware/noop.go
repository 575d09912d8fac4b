package middleware

import (
	"context"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

//goland:noinspection ALL
var (
	NoopTickHdl       = func(context.Context, common.Tick) {}
	NoopCandleHdl     = func(context.Context, common.Candle) {}
	NoopBalanceHdl    = func(context.Context, common.AccountBalance) {}
	NoopPosOpnHdl     = func(context.Context, common.Position) {}
	NoopPosUpdHdl     = func(context.Context, common.Position) {}
	NoopPosClsHdl     = func(context.Context, common.Position) {}
	NoopPosRjctHdl    = func(context.Context, common.Position) {}
	NoopNewsHdl       = func(context.Context, common.News) {}
	NoopDisconnectHdl = func(context.Context, common.Disconnect) {}
)
