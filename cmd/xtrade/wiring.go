package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	examples "github.com/peter-kozarec/xtrade/examples/strategy"
	"github.com/peter-kozarec/xtrade/internal/config"
	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/exchange/xstation"
	"github.com/peter-kozarec/xtrade/pkg/journal"
	"github.com/peter-kozarec/xtrade/pkg/middleware"
	"github.com/peter-kozarec/xtrade/pkg/notify"
	"github.com/peter-kozarec/xtrade/pkg/strategy"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
	"github.com/peter-kozarec/xtrade/pkg/xapi"
)

const routerCapacity = 4096

func newStrategy(cfg config.Strategy) strategy.Strategy {
	return examples.NewMeanReversion(
		cfg.Window,
		fixed.FromFloat64(cfg.Threshold),
		fixed.FromFloat64(cfg.Volume),
		fixed.FromFloat64(cfg.Stop))
}

func newBackend(logger *zap.Logger, cfg config.Xapi) *xstation.Backend {
	factory := xapi.TLSFactory(xapi.WithConnectTimeout(cfg.ConnectTimeout))
	if cfg.Transport == "websocket" {
		factory = xapi.WebsocketFactory(cfg.ConnectTimeout, nil)
	}
	return xstation.New(logger, cfg.Credentials(),
		xstation.WithServers(cfg.ServerList()...),
		xstation.WithTransportFactory(factory),
		xstation.WithPingInterval(cfg.PingInterval),
		xstation.WithConnectorOptions(xapi.WithCommandInterval(cfg.CommandInterval)))
}

func newNotifier(logger *zap.Logger, cfg config.Notify) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogger(logger)}
	if cfg.TelegramToken != "" {
		telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatId)
		if err != nil {
			return nil, fmt.Errorf("error creating telegram notifier: %w", err)
		}
		notifiers = append(notifiers, telegram)
	}
	return notifiers, nil
}

// openJournal returns nil when journaling is disabled.
func openJournal(ctx context.Context, cfg config.Journal) (journal.Store, error) {
	var (
		store *journal.SQLStore
		err   error
	)
	switch cfg.Driver {
	case "sqlite":
		store, err = journal.OpenSQLite(ctx, cfg.Path)
	case "postgres":
		store, err = journal.OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening %s journal: %w", cfg.Driver, err)
	}
	return store, nil
}

type instruments struct {
	monitor     *middleware.Monitor
	performance *middleware.Performance
	journal     *middleware.Journal
	notifier    *middleware.Notifier
}

func newInstruments(logger *zap.Logger, cfg *config.Config, store journal.Store, notifier notify.Notifier, runId string) *instruments {
	flags, unknown := middleware.ParseMonitorFlags(cfg.Monitor)
	if len(unknown) > 0 {
		logger.Warn("unknown monitor flags", zap.Strings("flags", unknown))
	}

	in := &instruments{
		monitor:     middleware.NewMonitor(logger, flags),
		performance: middleware.NewPerformance(logger),
		notifier:    middleware.NewNotifier(logger, notifier),
	}
	if store != nil {
		in.journal = middleware.NewJournal(logger, store, runId)
	}
	return in
}

// wrap installs the middleware around every router handler. Handlers not set
// yet are replaced by a no-op so the chain always has a tail.
func (in *instruments) wrap(router *bus.Router) {
	router.OnTick = middleware.Chain(in.performance.WithTick, in.monitor.WithTick)(
		bus.MergeHandlers[common.Tick](router.OnTick))
	router.OnCandle = middleware.Chain(in.performance.WithCandle, in.monitor.WithCandle)(
		bus.MergeHandlers[common.Candle](router.OnCandle))
	router.OnBalance = middleware.Chain(in.performance.WithBalance, in.monitor.WithBalance)(
		bus.MergeHandlers[common.AccountBalance](router.OnBalance))
	router.OnPositionOpen = middleware.Chain(in.performance.WithPositionOpen, in.monitor.WithPositionOpen)(
		bus.MergeHandlers[common.Position](router.OnPositionOpen))
	router.OnPositionUpdate = middleware.Chain(in.performance.WithPositionUpdate, in.monitor.WithPositionUpdate)(
		bus.MergeHandlers[common.Position](router.OnPositionUpdate))
	router.OnPositionReject = middleware.Chain(in.performance.WithPositionReject, in.monitor.WithPositionReject)(
		bus.MergeHandlers[common.Position](router.OnPositionReject))
	router.OnNews = in.monitor.WithNews(bus.MergeHandlers[common.News](router.OnNews))
	router.OnDisconnect = middleware.Chain(in.monitor.WithDisconnect, in.notifier.WithDisconnect)(
		bus.MergeHandlers[common.Disconnect](router.OnDisconnect))

	closeChain := []func(bus.PositionCloseEventHandler) bus.PositionCloseEventHandler{
		in.performance.WithPositionClose,
		in.monitor.WithPositionClose,
		in.notifier.WithPositionClose,
	}
	if in.journal != nil {
		closeChain = append(closeChain, in.journal.WithPositionClose)
	}
	router.OnPositionClose = middleware.Chain(closeChain...)(bus.MergeHandlers[common.Position](router.OnPositionClose))
}

func (in *instruments) finish() {
	in.performance.PrintStatistics()
	if in.journal != nil {
		in.journal.Flush()
	}
}
