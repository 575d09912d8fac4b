package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/internal/config"
	"github.com/peter-kozarec/xtrade/pkg/backtest"
	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/datasource"
	"github.com/peter-kozarec/xtrade/pkg/datasource/broker"
	"github.com/peter-kozarec/xtrade/pkg/datasource/csv"
	"github.com/peter-kozarec/xtrade/pkg/datasource/duckdb"
	"github.com/peter-kozarec/xtrade/pkg/datasource/historical"
	"github.com/peter-kozarec/xtrade/pkg/datasource/synthetic"
	"github.com/peter-kozarec/xtrade/pkg/strategy"
	"github.com/peter-kozarec/xtrade/pkg/utility"
)

func newBacktestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backtest",
		Short: "Replay history through the simulator and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.backtest(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

// openSource returns the configured candle source and a function releasing it.
func openSource(ctx context.Context, logger *zap.Logger, cfg *config.Config) (datasource.CandleSource, func(), error) {
	bt := cfg.Backtest
	params, err := bt.Parameters()
	if err != nil {
		return nil, nil, err
	}

	switch bt.Source {
	case "csv":
		r, err := csv.LoadFile(bt.Path, params.Symbol, params.Timeframe)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil

	case "duckdb":
		r := duckdb.NewReader(bt.Path)
		if err := r.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil

	case "mmap":
		s := historical.NewSource[historical.BinaryCandle](bt.Path)
		if err := s.Open(); err != nil {
			return nil, nil, err
		}
		return historical.NewCandleReader(s, params.Symbol, params.Timeframe), func() { _ = s.Close() }, nil

	case "synthetic":
		return synthetic.NewEURUSDCandleSource(params.Seed), func() {}, nil

	case "broker":
		backend := newBackend(logger, cfg.Xapi)
		if err := backend.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return broker.NewSource(backend), func() { _ = backend.Disconnect(context.WithoutCancel(ctx)) }, nil
	}
	return nil, nil, fmt.Errorf("unknown backtest source %q", bt.Source)
}

func (a *app) backtest(parent context.Context, out io.Writer) error {
	logger := a.logger

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	params, err := a.cfg.Backtest.Parameters()
	if err != nil {
		return err
	}

	source, release, err := openSource(ctx, logger, a.cfg)
	if err != nil {
		return fmt.Errorf("error opening %s source: %w", a.cfg.Backtest.Source, err)
	}
	defer release()

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

	var in *instruments
	hook := func(router *bus.Router, runId utility.RunID) {
		in = newInstruments(logger, a.cfg, store, notifier, runId.String())
		in.wrap(router)
	}

	newStrategyFn := func() strategy.Strategy { return newStrategy(a.cfg.Strategy) }
	runner := backtest.NewRunner(logger, source, newStrategyFn, notifier,
		backtest.WithPageSize(a.cfg.Backtest.PageSize),
		backtest.WithRouterHook(hook))

	result, ok := runner.Run(ctx, params, a.cfg.Backtest.Symbol.Info())
	if in != nil {
		in.finish()
	}
	if !ok {
		return fmt.Errorf("backtest did not produce a result, see log")
	}

	b, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}
	if path := a.cfg.Backtest.ResultsPath; path != "" {
		if err := os.WriteFile(path, b, 0o644); err != nil {
			return fmt.Errorf("error writing result: %w", err)
		}
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
