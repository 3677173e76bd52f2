package main

import (
	"fmt"

	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/pkg/stats"
	"github.com/urfave/cli/v2"
)

func calcCmd() *cli.Command {
	return &cli.Command{
		Name:      "calc",
		Usage:     "Compute weighted percentiles of values given on the command line",
		ArgsUsage: "<value...>",
		Description: `Prints one percentile per rank. Text output is one value per line.

Examples:
  wpct calc -q 50 1 2 3
  wpct calc -q 25,75 -w 3,1 10 20
  wpct calc -q 50 --sorter 2,0,1 3 5 1
  wpct calc -q 50 -- -4 -2 7`,
		Flags: []cli.Flag{
			&cli.Float64SliceFlag{
				Name:    "rank",
				Aliases: []string{"q"},
				Usage:   "Percentile rank in [0, 100] (repeatable or comma separated)",
			},
			&cli.Float64SliceFlag{
				Name:    "weights",
				Aliases: []string{"w"},
				Usage:   "Weight per value, comma separated (default 1 each)",
			},
			&cli.IntSliceFlag{
				Name:  "sorter",
				Usage: "Indices that sort the values ascending, comma separated",
			},
		},
		Action: runCalcCmd,
	}
}

func runCalcCmd(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("no values given")
	}
	samples, err := parseSamples(c.Args().Slice())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("rank") {
		cfg.Percentile.Ranks = c.Float64Slice("rank")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var weights []float64
	if c.IsSet("weights") {
		weights = c.Float64Slice("weights")
	}
	var sorter []int
	if c.IsSet("sorter") {
		sorter = c.IntSlice("sorter")
	}

	ranks := cfg.Percentile.Ranks
	values, err := stats.WeightedPercentiles(samples, ranks, weights, sorter)
	if err != nil {
		return err
	}

	formatter, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if formatter.Format() == output.FormatText {
		for _, v := range values {
			fmt.Fprintln(formatter.Writer(), formatValue(v, cfg.Percentile.Precision))
		}
		return nil
	}

	rows := make([][]string, len(ranks))
	for i, q := range ranks {
		rows[i] = []string{rankLabel(q), formatValue(values[i], cfg.Percentile.Precision)}
	}
	data := map[string]any{
		"ranks":  ranks,
		"values": values,
	}
	return formatter.Output(output.NewTable("Weighted Percentiles", []string{"Rank", "Value"}, rows, nil, data))
}
