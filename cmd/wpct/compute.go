package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/panbanda/wpct/internal/dataset"
	"github.com/panbanda/wpct/internal/fileproc"
	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/internal/progress"
	"github.com/panbanda/wpct/internal/scanner"
	"github.com/panbanda/wpct/internal/service/evaluate"
	"github.com/panbanda/wpct/pkg/config"
	"github.com/panbanda/wpct/pkg/watch"
	"github.com/urfave/cli/v2"
)

func computeCmd() *cli.Command {
	return &cli.Command{
		Name:      "compute",
		Aliases:   []string{"pct"},
		Usage:     "Compute weighted percentiles of sample files",
		ArgsUsage: "[file...]",
		Description: `Reads every dataset in the given files (stdin when none or "-") and prints
one row per dataset with one column per rank. Directories are searched for
.csv, .json, .yaml, .yml and .txt files, honoring .gitignore and the
input.exclude patterns.

Examples:
  wpct compute latency.csv
  wpct compute -q 50 -q 99.9 --weight-column hits access.csv
  wpct pct --summary regions.yaml
  wpct compute samples/
  wpct compute --watch samples/
  seq 1 100 | wpct pct -q 25,75`,
		Flags: []cli.Flag{
			&cli.Float64SliceFlag{
				Name:    "rank",
				Aliases: []string{"q"},
				Usage:   "Percentile rank in [0, 100] (repeatable or comma separated)",
			},
			&cli.StringFlag{
				Name:  "input-format",
				Usage: "Input format: auto, csv, json, yaml, text",
			},
			&cli.StringFlag{
				Name:  "value-column",
				Usage: "CSV column holding sample values",
			},
			&cli.StringFlag{
				Name:  "weight-column",
				Usage: "CSV column holding weights",
			},
			&cli.StringFlag{
				Name:  "delimiter",
				Usage: "CSV field delimiter",
			},
			&cli.BoolFlag{
				Name:  "no-header",
				Usage: "CSV files have no header row",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"j"},
				Usage:   "Datasets evaluated at once (0 = 2x CPUs)",
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Add weighted mean, standard deviation, min and max",
			},
			&cli.BoolFlag{
				Name:    "watch",
				Aliases: []string{"w"},
				Usage:   "Recompute whenever a sample file changes",
			},
		},
		Action: runComputeCmd,
	}
}

func runComputeCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	applyComputeFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts, err := datasetOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := &computeRun{c: c, cfg: cfg, opts: opts, args: getPaths(c)}
	if c.Bool("watch") {
		return run.runWatch(ctx)
	}
	return run.once(ctx)
}

// computeRun is one compute invocation. Watch mode repeats once on every
// change and keeps results for unchanged datasets in cache.
type computeRun struct {
	c     *cli.Context
	cfg   *config.Config
	opts  dataset.Options
	args  []string
	cache *evaluate.ResultCache
}

// once expands, loads, evaluates and prints every dataset. If some datasets
// fail, the report is still printed and the *evaluate.ProcessingErrors is
// returned.
func (r *computeRun) once(ctx context.Context) error {
	c, cfg := r.c, r.cfg

	paths, err := scanner.NewScanner(cfg).Expand(r.args)
	if err != nil {
		return err
	}

	datasets, err := loadDatasets(ctx, c, paths, r.opts, cfg.Concurrency.Workers)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker("Evaluating", len(datasets), progress.WithWriter(c.App.ErrWriter))
	svc := evaluate.New(
		evaluate.WithWorkers(cfg.Concurrency.Workers),
		evaluate.WithSummary(cfg.Percentile.Summary),
		evaluate.WithLogger(newLogger(c, cfg)),
		evaluate.WithCache(r.cache),
		evaluate.WithProgress(tracker.Tick),
	)

	report, err := svc.Evaluate(ctx, datasets, cfg.Percentile.Ranks)
	var perr *evaluate.ProcessingErrors
	switch {
	case err == nil:
		tracker.FinishSuccess()
	case errors.As(err, &perr):
		tracker.FinishFailed(report.Failed)
	default:
		tracker.FinishError(err)
		return err
	}

	formatter, ferr := newFormatter(c, cfg)
	if ferr != nil {
		return ferr
	}
	defer formatter.Close()

	if ferr := formatter.Output(buildComputeReport(report, cfg)); ferr != nil {
		return ferr
	}

	if perr != nil {
		warn := color.New(color.FgYellow)
		for _, e := range perr.Errors {
			warn.Fprintf(c.App.ErrWriter, "Warning: %v\n", e)
		}
		return err
	}
	return nil
}

// runWatch runs once, then again whenever a watched sample file changes, until
// ctx is cancelled. Errors after the first run are printed, not returned.
func (r *computeRun) runWatch(ctx context.Context) error {
	c := r.c
	for _, arg := range r.args {
		if arg == dataset.Stdin {
			return errors.New("--watch needs file or directory arguments, not stdin")
		}
	}

	onChange := func(changed []string) {
		color.New(color.FgCyan).Fprintf(c.App.ErrWriter, "\nChanged: %s\n", strings.Join(changed, ", "))
		r.printWatchError(r.once(ctx))
	}
	r.cache = evaluate.NewResultCache(0)
	w, err := watch.New(onChange,
		watch.WithDebounce(time.Duration(r.cfg.Watch.DebounceMS)*time.Millisecond),
		watch.WithFilter(scanner.IsSampleFile),
		watch.WithLogger(newLogger(c, r.cfg)),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(r.args); err != nil {
		return err
	}

	r.printWatchError(r.once(ctx))
	color.New(color.FgCyan).Fprintln(c.App.ErrWriter, "Watching for changes. Press Ctrl+C to stop.")

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printWatchError reports a failed run. Per-dataset failures were already
// printed as warnings.
func (r *computeRun) printWatchError(err error) {
	var perr *evaluate.ProcessingErrors
	if err == nil || errors.As(err, &perr) {
		return
	}
	color.New(color.FgRed).Fprintf(r.c.App.ErrWriter, "Error: %v\n", err)
}

// applyComputeFlags overrides config values with flags given on the command
// line.
func applyComputeFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("rank") {
		cfg.Percentile.Ranks = c.Float64Slice("rank")
	}
	if c.IsSet("summary") {
		cfg.Percentile.Summary = c.Bool("summary")
	}
	if c.IsSet("input-format") {
		cfg.Input.Format = c.String("input-format")
	}
	if c.IsSet("value-column") {
		cfg.Input.ValueColumn = c.String("value-column")
	}
	if c.IsSet("weight-column") {
		cfg.Input.WeightColumn = c.String("weight-column")
	}
	if c.IsSet("delimiter") {
		cfg.Input.Delimiter = c.String("delimiter")
	}
	if c.Bool("no-header") {
		cfg.Input.Header = false
	}
	if c.IsSet("workers") {
		cfg.Concurrency.Workers = c.Int("workers")
	}
}

// datasetOptions converts validated input config to parser options.
func datasetOptions(cfg *config.Config) (dataset.Options, error) {
	format, err := dataset.ParseFormat(cfg.Input.Format)
	if err != nil {
		return dataset.Options{}, err
	}
	return dataset.Options{
		Format:       format,
		ValueColumn:  cfg.Input.ValueColumn,
		WeightColumn: cfg.Input.WeightColumn,
		Delimiter:    []rune(cfg.Input.Delimiter)[0],
		NoHeader:     !cfg.Input.Header,
	}, nil
}

// loadDatasets reads every path in parallel and returns the datasets in path
// order. Stdin comes from the app's reader.
func loadDatasets(ctx context.Context, c *cli.Context, paths []string, opts dataset.Options, workers int) ([]*dataset.Dataset, error) {
	tracker := progress.NewTracker("Loading", len(paths), progress.WithWriter(c.App.ErrWriter))

	var stdinMu sync.Mutex
	loaded, err := fileproc.MapFiles(ctx, paths, workers, func(path string) ([]*dataset.Dataset, error) {
		if path == dataset.Stdin {
			stdinMu.Lock()
			defer stdinMu.Unlock()
			return readStdin(c, opts)
		}
		return dataset.Load(path, opts)
	}, tracker.Tick)
	if err != nil {
		tracker.FinishError(err)
		return nil, err
	}
	tracker.FinishSuccess()

	var datasets []*dataset.Dataset
	for _, ds := range loaded {
		datasets = append(datasets, ds...)
	}
	return datasets, nil
}

func readStdin(c *cli.Context, opts dataset.Options) ([]*dataset.Dataset, error) {
	format := opts.Format
	if format == dataset.FormatAuto {
		format = dataset.FormatText
	}
	datasets, err := dataset.Parse("stdin", c.App.Reader, format, opts)
	if err != nil {
		return nil, fmt.Errorf("stdin: %w", err)
	}
	for _, ds := range datasets {
		ds.Source = dataset.Stdin
	}
	return datasets, nil
}

// buildComputeReport lays the report out as a table, plus a summary table
// when summaries were computed. JSON and TOON get the report itself.
func buildComputeReport(report *evaluate.Report, cfg *config.Config) output.Renderable {
	precision := cfg.Percentile.Precision

	headers := []string{"Dataset", "N", "Kept", "Weight"}
	for _, q := range report.Ranks {
		headers = append(headers, rankLabel(q))
	}

	var rows, summaryRows [][]string
	var totalN, totalKept int
	var totalWeight float64
	for _, r := range report.Results {
		totalN += r.Count
		totalKept += r.Kept
		totalWeight += r.TotalWeight

		row := []string{r.Name, humanize.Comma(int64(r.Count)), humanize.Comma(int64(r.Kept)), humanize.CommafWithDigits(r.TotalWeight, precision)}
		for i := range report.Ranks {
			if r.Error != "" {
				row = append(row, "-")
				continue
			}
			row = append(row, formatValue(r.Values[i], precision))
		}
		rows = append(rows, row)

		if r.Summary != nil {
			s := r.Summary
			summaryRows = append(summaryRows, []string{
				r.Name,
				formatValue(s.Mean, precision),
				formatValue(s.StdDev, precision),
				formatValue(s.Min, precision),
				formatValue(s.Max, precision),
			})
		}
	}

	footer := make([]string, len(headers))
	footer[0] = fmt.Sprintf("%d datasets", len(report.Results))
	if len(report.Results) == 1 {
		footer[0] = "1 dataset"
	}
	footer[1] = humanize.Comma(int64(totalN))
	footer[2] = humanize.Comma(int64(totalKept))
	footer[3] = humanize.CommafWithDigits(totalWeight, precision)

	table := output.NewTable("Weighted Percentiles", headers, rows, footer, report)
	if !cfg.Percentile.Summary {
		return table
	}

	summary := output.NewTable("Summary", []string{"Dataset", "Mean", "StdDev", "Min", "Max"}, summaryRows, nil, nil)
	return &output.Report{
		Sections: []output.Renderable{table, summary},
		Data:     report,
	}
}
