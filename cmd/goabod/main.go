// Command goabod fits an outlier detector on a CSV or PCAP dataset and writes
// per-sample anomaly scores and labels as CSV.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/goabod/pkg/detectors"
)

type app struct {
	cfg         Config
	logger      *zap.Logger
	detectorFor func(Config, *zap.Logger) (detectors.Detector, error)
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg Config) *cobra.Command {
	a := &app{cfg: cfg, logger: zap.NewNop(), detectorFor: newDetector}

	root := &cobra.Command{
		Use:          "goabod",
		Short:        "Angle-based outlier detection",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := NewLogger(a.cfg.LogLevel, a.cfg.LogFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format (console, json)")

	root.AddCommand(newScoreCmd(a))
	return root
}
