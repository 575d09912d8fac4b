package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/datasource/csv"
	"github.com/peter-kozarec/xtrade/pkg/datasource/historical"
)

func newDumpCmd(a *app) *cobra.Command {
	var (
		out    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Export the configured backtest range to a candle file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.dump(cmd.Context(), out, format)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	cmd.Flags().StringVarP(&format, "format", "f", "bin", "output format, bin or csv")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func (a *app) dump(ctx context.Context, out, format string) error {
	if format != "bin" && format != "csv" {
		return fmt.Errorf("unknown format %q", format)
	}

	params, err := a.cfg.Backtest.Parameters()
	if err != nil {
		return err
	}
	source, release, err := openSource(ctx, a.logger, a.cfg)
	if err != nil {
		return err
	}
	defer release()

	var candles []common.Candle
	from := params.From
	for {
		page, err := source.ReadCandles(ctx, params.Symbol, params.Timeframe, from, params.To, a.cfg.Backtest.PageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		candles = append(candles, page...)
		from = params.Timeframe.End(page[len(page)-1].Date)
	}

	f, err := os.Create(out) // #nosec G304
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if format == "csv" {
		err = csv.Write(f, candles)
	} else {
		err = historical.WriteCandles(f, candles)
	}
	if err != nil {
		return err
	}

	a.logger.Info("dump finished",
		zap.String("symbol", params.Symbol),
		zap.String("file", out),
		zap.Int("candles", len(candles)))
	return f.Sync()
}
