package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dataio "github.com/hed1ad/goabod/pkg/io"
	"github.com/hed1ad/goabod/pkg/io/csv"
	"github.com/hed1ad/goabod/pkg/io/pcap"
)

type scoreOptions struct {
	query      string
	output     string
	save       string
	load       string
	pcapLimit  int
	pcapFilter string
}

func newScoreCmd(a *app) *cobra.Command {
	var opts scoreOptions

	cmd := &cobra.Command{
		Use:   "score [flags] DATA",
		Short: "Fit a detector on DATA and write anomaly scores",
		Long: `Fit a detector on DATA (CSV, or PCAP by extension) and write index,score,label
rows for every training sample, or for the samples of --query when given.
With --load the model is read from a file instead of being fitted, and DATA is scored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.score(cmd.OutOrStdout(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&a.cfg.Detector, "detector", "d", a.cfg.Detector, "detector: abod, lof or iforest")
	f.StringVarP(&a.cfg.Method, "method", "m", a.cfg.Method, "abod method: fast or default")
	f.IntVarP(&a.cfg.Neighbors, "neighbors", "k", a.cfg.Neighbors, "neighborhood size, 0 for the detector default")
	f.Float64VarP(&a.cfg.Contamination, "contamination", "c", a.cfg.Contamination, "expected outlier fraction in (0, 0.5]")
	f.StringVar(&a.cfg.Algorithm, "algorithm", a.cfg.Algorithm, "neighbor index: auto, kd_tree or brute")
	f.IntVar(&a.cfg.LeafSize, "leaf-size", a.cfg.LeafSize, "kd-tree leaf size")
	f.IntVar(&a.cfg.Workers, "workers", a.cfg.Workers, "parallel scoring workers, 0 for GOMAXPROCS")
	f.IntVar(&a.cfg.Trees, "trees", a.cfg.Trees, "iforest tree count")
	f.IntVar(&a.cfg.SampleSize, "sample-size", a.cfg.SampleSize, "iforest subsample size")
	f.Int64Var(&a.cfg.Seed, "seed", a.cfg.Seed, "random seed")
	f.BoolVar(&a.cfg.Header, "header", a.cfg.Header, "CSV inputs start with a header row")

	f.StringVarP(&opts.query, "query", "q", "", "score this file instead of the training data")
	f.StringVarP(&opts.output, "output", "o", "", "results file, stdout when empty")
	f.StringVar(&opts.save, "save", "", "write the fitted model to this file")
	f.StringVar(&opts.load, "load", "", "read a fitted model from this file instead of fitting")
	f.IntVar(&opts.pcapLimit, "pcap-limit", 0, "stop reading a capture after this many packets")
	f.StringVar(&opts.pcapFilter, "pcap-filter", "", "BPF filter applied to captures")

	cmd.MarkFlagsMutuallyExclusive("save", "load")
	return cmd
}

func (a *app) score(stdout io.Writer, dataPath string, opts scoreOptions) error {
	det, err := a.detectorFor(a.cfg, a.logger)
	if err != nil {
		return err
	}

	data, err := a.readMatrix(dataPath, opts)
	if err != nil {
		return err
	}

	var scores []float64
	var labels []int

	if opts.load != "" {
		blob, err := os.ReadFile(opts.load)
		if err != nil {
			return fmt.Errorf("read model: %w", err)
		}
		if err := det.Load(blob); err != nil {
			return err
		}
		if scores, labels, err = det.Classify(data); err != nil {
			return err
		}
	} else {
		if err := det.Fit(data); err != nil {
			return err
		}
		a.logger.Info("detector fitted",
			zap.String("detector", a.cfg.Detector),
			zap.Int("samples", len(data)),
			zap.Float64("threshold", det.Threshold()),
		)

		if opts.save != "" {
			blob, err := det.Save()
			if err != nil {
				return err
			}
			if err := os.WriteFile(opts.save, blob, 0o644); err != nil {
				return fmt.Errorf("write model: %w", err)
			}
		}

		if opts.query != "" {
			query, err := a.readMatrix(opts.query, opts)
			if err != nil {
				return err
			}
			if scores, labels, err = det.Classify(query); err != nil {
				return err
			}
		} else {
			scores, labels = det.DecisionScores(), det.Labels()
		}
	}

	return a.writeResults(stdout, opts.output, dataio.Results(scores, labels))
}

func (a *app) openSource(path string, opts scoreOptions) (dataio.FeatureSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcap", ".pcapng", ".cap":
		var popts []pcap.Option
		if opts.pcapLimit > 0 {
			popts = append(popts, pcap.WithLimit(opts.pcapLimit))
		}
		if opts.pcapFilter != "" {
			popts = append(popts, pcap.WithFilter(opts.pcapFilter))
		}
		return pcap.NewFileReader(path, popts...)
	default:
		return csv.Open(path, csv.WithHeader(a.cfg.Header), csv.WithLogger(a.logger))
	}
}

func (a *app) readMatrix(path string, opts scoreOptions) ([][]float64, error) {
	src, err := a.openSource(path, opts)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := src.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	a.logger.Debug("dataset loaded",
		zap.String("path", path),
		zap.Int("rows", len(data)),
		zap.Strings("features", src.FeatureNames()),
	)
	return data, nil
}

func (a *app) writeResults(stdout io.Writer, path string, results []dataio.Result) error {
	var w *csv.Writer
	if path == "" {
		w = csv.NewWriter(stdout)
	} else {
		var err error
		if w, err = csv.Create(path); err != nil {
			return err
		}
	}

	if err := w.WriteAll(results); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
