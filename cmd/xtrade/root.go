package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/internal/config"
	"github.com/peter-kozarec/xtrade/internal/dbg"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "xtrade",
		Short:         "Automated trading over the xStation API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := dbg.NewLogger(cfg.Log.Level, cfg.Log.Production)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(newLiveCmd(a), newBacktestCmd(a), newDumpCmd(a))
	return root
}
