package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/panbanda/wpct/internal/dataset"
	"github.com/panbanda/wpct/internal/fileproc"
	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/internal/scanner"
	"github.com/panbanda/wpct/internal/service/evaluate"
	"github.com/panbanda/wpct/pkg/config"
	toon "github.com/toon-format/toon-go"
)

// OutputInput is shared by all tools.
type OutputInput struct {
	Ranks  []float64 `json:"ranks,omitempty" jsonschema:"Percentile ranks in [0, 100]. Defaults to 50, 90, 95, 99."`
	Format string    `json:"format,omitempty" jsonschema:"Output format: toon (default), json, or markdown."`
}

// PercentileInput holds inline samples.
type PercentileInput struct {
	OutputInput
	Samples []float64 `json:"samples" jsonschema:"Sample values."`
	Weights []float64 `json:"weights,omitempty" jsonschema:"Non-negative weight per sample. Defaults to 1 for every sample."`
	Sorter  []int     `json:"sorter,omitempty" jsonschema:"Indices that sort samples ascending, if already known."`
}

// DatasetsInput names sample files.
type DatasetsInput struct {
	OutputInput
	Paths        []string `json:"paths" jsonschema:"Sample files or directories to load (csv, json, yaml, or text)."`
	InputFormat  string   `json:"input_format,omitempty" jsonschema:"Force the file format instead of detecting it from the extension."`
	ValueColumn  string   `json:"value_column,omitempty" jsonschema:"CSV column holding values. Default value."`
	WeightColumn string   `json:"weight_column,omitempty" jsonschema:"CSV column holding weights. Default weight."`
	Summary      bool     `json:"summary,omitempty" jsonschema:"Include weighted mean, standard deviation, min and max."`
}

// PercentileResult is returned by weighted_percentile.
type PercentileResult struct {
	Ranks       []float64 `json:"ranks" toon:"ranks"`
	Values      []float64 `json:"values" toon:"values"`
	Count       int       `json:"count" toon:"count"`
	Kept        int       `json:"kept" toon:"kept"`
	TotalWeight float64   `json:"total_weight" toon:"total_weight"`
}

func getRanks(input OutputInput) []float64 {
	if len(input.Ranks) == 0 {
		return config.DefaultConfig().Percentile.Ranks
	}
	return input.Ranks
}

func getFormat(input OutputInput) output.Format {
	switch input.Format {
	case "json":
		return output.FormatJSON
	case "markdown", "md":
		return output.FormatMarkdown
	default:
		return output.FormatTOON
	}
}

func formatOutput(data any, format output.Format) (string, error) {
	switch format {
	case output.FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case output.FormatMarkdown:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return "```\n" + string(out) + "\n```", nil
	default:
		out, err := toon.Marshal(data, toon.WithIndent(2))
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func toolResult(data any, format output.Format) (*mcp.CallToolResult, any, error) {
	text, err := formatOutput(data, format)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, nil, nil
}

func toolError(msg string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "Error: " + msg},
		},
		IsError: true,
	}, nil, nil
}

func handleWeightedPercentile(ctx context.Context, req *mcp.CallToolRequest, input PercentileInput) (*mcp.CallToolResult, any, error) {
	ds := &dataset.Dataset{
		Name:    "input",
		Samples: input.Samples,
		Weights: input.Weights,
		Sorter:  input.Sorter,
	}

	report, err := evaluate.New(evaluate.WithWorkers(1)).Evaluate(ctx, []*dataset.Dataset{ds}, getRanks(input.OutputInput))
	if err != nil {
		var perr *evaluate.ProcessingErrors
		if errors.As(err, &perr) && len(perr.Errors) == 1 {
			return toolError(perr.Errors[0].Err.Error())
		}
		return toolError(err.Error())
	}

	r := report.Results[0]
	return toolResult(PercentileResult{
		Ranks:       report.Ranks,
		Values:      r.Values,
		Count:       r.Count,
		Kept:        r.Kept,
		TotalWeight: r.TotalWeight,
	}, getFormat(input.OutputInput))
}

func handleAnalyzeDatasets(ctx context.Context, req *mcp.CallToolRequest, input DatasetsInput) (*mcp.CallToolResult, any, error) {
	if len(input.Paths) == 0 {
		return toolError("no paths given")
	}

	opts := dataset.DefaultOptions()
	if input.InputFormat != "" {
		format, err := dataset.ParseFormat(input.InputFormat)
		if err != nil {
			return toolError(err.Error())
		}
		opts.Format = format
	}
	if input.ValueColumn != "" {
		opts.ValueColumn = input.ValueColumn
	}
	if input.WeightColumn != "" {
		opts.WeightColumn = input.WeightColumn
	}

	for _, path := range input.Paths {
		if path == dataset.Stdin {
			return toolError("stdin is reserved for the MCP transport")
		}
	}
	paths, err := scanner.NewScanner(config.DefaultConfig()).Expand(input.Paths)
	if err != nil {
		return toolError(err.Error())
	}

	loaded, err := fileproc.MapFiles(ctx, paths, 0, func(path string) ([]*dataset.Dataset, error) {
		return dataset.Load(path, opts)
	}, nil)
	if err != nil {
		return toolError(err.Error())
	}
	var datasets []*dataset.Dataset
	for _, ds := range loaded {
		datasets = append(datasets, ds...)
	}

	svc := evaluate.New(evaluate.WithSummary(input.Summary))
	report, err := svc.Evaluate(ctx, datasets, getRanks(input.OutputInput))
	if err != nil {
		var perr *evaluate.ProcessingErrors
		if !errors.As(err, &perr) {
			return toolError(err.Error())
		}
		if report.Failed == len(report.Results) {
			return toolError(fmt.Sprintf("all datasets failed: %v", err))
		}
	}

	return toolResult(report, getFormat(input.OutputInput))
}
