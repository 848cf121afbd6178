package filerunner

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosom/scrapemate"
	"github.com/gosom/scrapemate/adapters/writers/csvwriter"
	"github.com/gosom/scrapemate/adapters/writers/jsonwriter"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gosom/google-maps-review-images/entities"
	"github.com/gosom/google-maps-review-images/exiter"
	"github.com/gosom/google-maps-review-images/harvester"
	"github.com/gosom/google-maps-review-images/runner"
	"github.com/gosom/google-maps-review-images/tlmt"
)

// PageHarvester is the part of the pipeline the batch needs.
type PageHarvester interface {
	Harvest(ctx context.Context, target entities.TargetPage) *harvester.PageResult
}

type fileRunner struct {
	cfg       *runner.Config
	log       *zap.Logger
	harvester PageHarvester
	pipeline  *runner.Pipeline
	writer    scrapemate.ResultWriter
	outfile   *os.File
}

func New(cfg *runner.Config, logger *zap.Logger) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeFile {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	ans := &fileRunner{
		cfg: cfg,
		log: logger,
	}

	if err := ans.setWriter(); err != nil {
		return nil, err
	}

	pipeline, err := runner.NewPipeline(cfg, cfg.Store(logger), logger)
	if err != nil {
		return nil, multierr.Append(err, ans.closeOutput())
	}

	ans.pipeline = pipeline
	ans.harvester = pipeline.Harvester

	return ans, nil
}

// Run harvests every target of the input file one after the other and writes
// one report row per page.
func (r *fileRunner) Run(ctx context.Context) (err error) {
	var targets []entities.TargetPage

	exitMonitor := exiter.New(exiter.WithLogger(r.log))

	t0 := time.Now().UTC()

	defer func() {
		p := exitMonitor.Progress()
		params := map[string]any{
			"targets":       len(targets),
			"pages_failed":  p.PagesFailed,
			"images_saved":  p.ImagesSaved,
			"images_failed": p.ImagesFailed,
			"duration":      time.Now().UTC().Sub(t0).String(),
		}

		if err != nil {
			params["error"] = err.Error()
		}

		_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("file_runner", params))
	}()

	targets, err = runner.ReadTargetsFile(r.cfg.InputFile, r.log)
	if err != nil {
		return err
	}

	r.log.Info("targets loaded", zap.Int("count", len(targets)))

	return Harvest(ctx, r.harvester, targets, r.writer, exitMonitor)
}

// Harvest processes targets sequentially and streams each result to w. It
// stops early when ctx is cancelled or when w fails, returning the writer's
// error in the latter case.
func Harvest(ctx context.Context, h PageHarvester, targets []entities.TargetPage, w scrapemate.ResultWriter, exitMonitor exiter.Exiter) error {
	if len(targets) == 0 {
		return nil
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitMonitor.SetTargetCount(len(targets))
	exitMonitor.SetCancelFunc(cancel)

	go exitMonitor.Run(monitorCtx)

	results := make(chan scrapemate.Result)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx, results)
	})

	g.Go(func() error {
		defer close(results)

		for _, target := range targets {
			if err := gctx.Err(); err != nil {
				return err
			}

			res := h.Harvest(gctx, target)
			exitMonitor.Record(res)

			select {
			case results <- scrapemate.Result{Data: res}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	return g.Wait()
}

func (r *fileRunner) Close(context.Context) error {
	var err error

	if r.pipeline != nil {
		err = multierr.Append(err, r.pipeline.Close())
	}

	return multierr.Append(err, r.closeOutput())
}

func (r *fileRunner) closeOutput() error {
	if r.outfile == nil {
		return nil
	}

	err := r.outfile.Close()
	r.outfile = nil

	return err
}

func (r *fileRunner) setWriter() error {
	var out io.Writer

	switch r.cfg.ResultsFile {
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.Create(r.cfg.ResultsFile)
		if err != nil {
			return err
		}

		r.outfile = f
		out = f
	}

	r.writer = NewReportWriter(out, r.cfg.JSON)

	return nil
}

// NewReportWriter writes page reports as csv rows or as JSON lines.
func NewReportWriter(w io.Writer, asJSON bool) scrapemate.ResultWriter {
	if asJSON {
		return jsonwriter.NewJSONWriter(w)
	}

	return csvwriter.NewCsvWriter(csv.NewWriter(w))
}
