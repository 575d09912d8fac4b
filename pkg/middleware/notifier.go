package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/notify"
)

// Notifier reports closed positions and session loss to the operator.
type Notifier struct {
	logger   *zap.Logger
	notifier notify.Notifier
}

func NewNotifier(logger *zap.Logger, notifier notify.Notifier) *Notifier {
	return &Notifier{
		logger:   logger.Named("notifier"),
		notifier: notifier,
	}
}

func (n *Notifier) WithPositionClose(handler bus.PositionCloseEventHandler) bus.PositionCloseEventHandler {
	return func(ctx context.Context, position common.Position) {
		msg := fmt.Sprintf("id = %s\nsymbol = %s\nprofit = %s\nreason = %s",
			position.Id, position.Symbol, position.Profit.Rescale(2).String(), position.ReasonClosed)
		n.send(ctx, "Position Closed", msg)
		handler(ctx, position)
	}
}

func (n *Notifier) WithDisconnect(handler bus.DisconnectEventHandler) bus.DisconnectEventHandler {
	return func(ctx context.Context, d common.Disconnect) {
		n.send(ctx, "Session Closed", d.Reason)
		handler(ctx, d)
	}
}

func (n *Notifier) send(ctx context.Context, title, msg string) {
	if err := n.notifier.Notify(ctx, title, msg); err != nil {
		n.logger.Warn("unable to notify", zap.String("title", title), zap.Error(err))
	}
}
