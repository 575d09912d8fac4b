package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/reconcile"
	"github.com/peter-kozarec/xtrade/pkg/strategy"
	"github.com/peter-kozarec/xtrade/pkg/utility"
)

func newLiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Trade the configured strategy on the broker account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.live(cmd.Context())
		},
	}
}

func (a *app) live(parent context.Context) error {
	logger := a.logger
	runId := utility.GetRunID()
	logger.Info("xtrade started",
		zap.String("environment", a.cfg.Xapi.Mode),
		zap.String("version", Version),
		zap.Stringer("run_id", runId))
	defer logger.Info("xtrade finished")

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	notifier, err := newNotifier(logger, a.cfg.Notify)
	if err != nil {
		return err
	}
	store, err := openJournal(ctx, a.cfg.Journal)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	backend := newBackend(logger, a.cfg.Xapi)
	router := bus.NewRouter(logger, routerCapacity)
	engine := reconcile.NewEngine(logger, backend, router, a.cfg.Strategy.Id)

	if err := engine.Connect(ctx, a.cfg.Strategy.Symbols...); err != nil {
		return fmt.Errorf("error connecting: %w", err)
	}

	host := strategy.NewHost(logger, newStrategy(a.cfg.Strategy), engine, notifier, engine.Balance().Balance)
	host.Attach(router)

	// A lost session ends the run, there is no reconnect.
	sessionDone := make(chan struct{})
	var sessionOnce sync.Once
	router.OnDisconnect = bus.MergeHandlers[common.Disconnect](router.OnDisconnect, func(context.Context, common.Disconnect) {
		sessionOnce.Do(func() { close(sessionDone) })
	})

	in := newInstruments(logger, a.cfg, store, notifier, runId.String())
	in.wrap(router)
	defer in.finish()

	routerCtx, stopRouter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRouter()
	errChan := router.Exec(routerCtx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-sessionDone:
		logger.Warn("broker session lost")
	}

	if backend.IsConnected() {
		if err := engine.Disconnect(routerCtx); err != nil {
			logger.Warn("unable to disconnect", zap.Error(err))
		}
	}
	stopRouter()
	if err := <-errChan; !errors.Is(err, context.Canceled) {
		return err
	}
	// Close events posted by the disconnect still reach the journal.
	router.Drain(context.WithoutCancel(ctx))

	router.GetStatistics().Print(logger)
	return nil
}
