package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hed1ad/goabod/pkg/detectors"
	"github.com/hed1ad/goabod/pkg/detectors/abod"
	"github.com/hed1ad/goabod/pkg/detectors/iforest"
	"github.com/hed1ad/goabod/pkg/detectors/lof"
	"github.com/hed1ad/goabod/pkg/neighbors"
)

// Detector names accepted by --detector.
const (
	DetectorABOD    = "abod"
	DetectorLOF     = "lof"
	DetectorIForest = "iforest"
)

// newDetector builds the detector named by cfg. Parameter ranges are checked by Fit.
func newDetector(cfg Config, logger *zap.Logger) (detectors.Detector, error) {
	dc := cfg.detectorConfig()
	alg := neighbors.Algorithm(cfg.Algorithm)

	switch strings.ToLower(cfg.Detector) {
	case DetectorABOD:
		opts := []abod.Option{
			abod.WithMethod(abod.Method(cfg.Method)),
			abod.WithContamination(dc.Contamination),
			abod.WithAlgorithm(alg),
			abod.WithLeafSize(cfg.LeafSize),
			abod.WithWorkers(dc.Workers),
			abod.WithLogger(logger.Named("abod")),
		}
		if cfg.Neighbors > 0 {
			opts = append(opts, abod.WithNeighbors(cfg.Neighbors))
		}
		return abod.New(opts...), nil

	case DetectorLOF:
		opts := []lof.Option{
			lof.WithContamination(dc.Contamination),
			lof.WithAlgorithm(alg),
			lof.WithLeafSize(cfg.LeafSize),
			lof.WithLogger(logger.Named("lof")),
		}
		if cfg.Neighbors > 0 {
			opts = append(opts, lof.WithNeighbors(cfg.Neighbors))
		}
		return lof.New(opts...), nil

	case DetectorIForest:
		return iforest.New(
			iforest.WithTrees(cfg.Trees),
			iforest.WithSampleSize(cfg.SampleSize),
			iforest.WithContamination(dc.Contamination),
			iforest.WithSeed(dc.RandomSeed),
			iforest.WithLogger(logger.Named("iforest")),
		), nil

	default:
		return nil, fmt.Errorf("%w: unknown detector %q, want one of %s, %s, %s",
			detectors.ErrInvalidConfig, cfg.Detector, DetectorABOD, DetectorLOF, DetectorIForest)
	}
}
