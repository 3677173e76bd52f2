package mcpserver

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/panbanda/wpct/internal/output"
	"github.com/panbanda/wpct/internal/service/evaluate"
)

// TestServerCreation verifies the MCP server can be created without panicking.
func TestServerCreation(t *testing.T) {
	server := NewServer("1.0.0-test")
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
	if server.server == nil {
		t.Fatal("NewServer().server is nil")
	}
}

// TestServerCreationEmptyVersion verifies empty version defaults to "dev".
func TestServerCreationEmptyVersion(t *testing.T) {
	server := NewServer("")
	if server == nil {
		t.Fatal("NewServer(\"\") returned nil")
	}
}

// TestServerListsTools connects a client over in-memory transports.
func TestServerListsTools(t *testing.T) {
	ctx := context.Background()
	server := NewServer("test")

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server Connect() error: %v", err)
	}
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client Connect() error: %v", err)
	}
	defer session.Close()

	tools, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools() error: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"weighted_percentile", "analyze_datasets"} {
		if !names[want] {
			t.Errorf("tool %q not registered, got %v", want, names)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name: "weighted_percentile",
		Arguments: map[string]any{
			"samples": []float64{10, 20},
			"weights": []float64{3, 1},
			"ranks":   []float64{50},
			"format":  "json",
		},
	})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool() returned tool error: %v", result.Content)
	}
	got := decodePercentileResult(t, result)
	if len(got.Values) != 1 || math.Abs(got.Values[0]-12.5) > 1e-9 {
		t.Errorf("values = %v, want [12.5]", got.Values)
	}
}

// TestToolDescriptions verifies all description functions return guidance.
func TestToolDescriptions(t *testing.T) {
	descriptions := map[string]func() string{
		"weightedPercentile": describeWeightedPercentile,
		"analyzeDatasets":    describeAnalyzeDatasets,
	}

	for name, fn := range descriptions {
		t.Run(name, func(t *testing.T) {
			desc := fn()
			for _, section := range []string{"USE WHEN:", "INTERPRETING RESULTS:", "METRICS RETURNED:"} {
				if !strings.Contains(desc, section) {
					t.Errorf("%s description missing %s section", name, section)
				}
			}
		})
	}
}

// TestGetRanks verifies the default ranks fill in for an empty list.
func TestGetRanks(t *testing.T) {
	got := getRanks(OutputInput{})
	want := []float64{50, 90, 95, 99}
	if len(got) != len(want) {
		t.Fatalf("getRanks() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("getRanks()[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	got = getRanks(OutputInput{Ranks: []float64{99.9}})
	if len(got) != 1 || got[0] != 99.9 {
		t.Errorf("getRanks() = %v, want [99.9]", got)
	}
}

// TestGetFormat verifies format parsing logic.
func TestGetFormat(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		expected output.Format
	}{
		{"empty defaults to toon", "", output.FormatTOON},
		{"json format", "json", output.FormatJSON},
		{"markdown format", "markdown", output.FormatMarkdown},
		{"md alias", "md", output.FormatMarkdown},
		{"unknown defaults to toon", "xml", output.FormatTOON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := getFormat(OutputInput{Format: tt.format})
			if result != tt.expected {
				t.Errorf("getFormat(%q) = %v, want %v", tt.format, result, tt.expected)
			}
		})
	}
}

// TestToolError verifies error result formatting.
func TestToolError(t *testing.T) {
	result, _, err := toolError("test error message")
	if err != nil {
		t.Fatalf("toolError returned unexpected error: %v", err)
	}
	if !result.IsError {
		t.Error("toolError result.IsError should be true")
	}
	if text := resultText(t, result); text != "Error: test error message" {
		t.Errorf("toolError text = %q, want %q", text, "Error: test error message")
	}
}

// TestFormatOutput verifies output formatting works for all formats.
func TestFormatOutput(t *testing.T) {
	data := map[string]any{
		"name":  "latency",
		"value": 123,
	}

	for _, format := range []string{"", "toon", "json", "markdown"} {
		t.Run(format, func(t *testing.T) {
			out, err := formatOutput(data, getFormat(OutputInput{Format: format}))
			if err != nil {
				t.Fatalf("formatOutput failed for format %q: %v", format, err)
			}
			if !strings.Contains(out, "latency") {
				t.Errorf("formatOutput(%q) = %q, missing value", format, out)
			}
		})
	}

	out, err := formatOutput(data, output.FormatJSON)
	if err != nil {
		t.Fatalf("formatOutput failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Errorf("json output does not decode: %v\n%s", err, out)
	}
}

func TestHandleWeightedPercentile(t *testing.T) {
	tests := []struct {
		name  string
		input PercentileInput
		want  []float64
		kept  int
		total float64
	}{
		{
			name: "weighted",
			input: PercentileInput{
				OutputInput: OutputInput{Ranks: []float64{50}, Format: "json"},
				Samples:     []float64{10, 20},
				Weights:     []float64{3, 1},
			},
			want:  []float64{12.5},
			kept:  2,
			total: 4,
		},
		{
			name: "uniform with clamped ranks",
			input: PercentileInput{
				OutputInput: OutputInput{Ranks: []float64{0, 25, 100}, Format: "json"},
				Samples:     []float64{4, 1, 3, 2},
			},
			want:  []float64{1, 1.5, 4},
			kept:  4,
			total: 4,
		},
		{
			name: "zero weights dropped with sorter",
			input: PercentileInput{
				OutputInput: OutputInput{Ranks: []float64{50}, Format: "json"},
				Samples:     []float64{3, 100, 1},
				Weights:     []float64{1, 0, 1},
				Sorter:      []int{2, 0, 1},
			},
			want:  []float64{2},
			kept:  2,
			total: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handleWeightedPercentile(context.Background(), nil, tt.input)
			if err != nil {
				t.Fatalf("handleWeightedPercentile returned error: %v", err)
			}
			if result.IsError {
				t.Fatalf("unexpected tool error: %s", resultText(t, result))
			}

			got := decodePercentileResult(t, result)
			if len(got.Values) != len(tt.want) {
				t.Fatalf("values = %v, want %v", got.Values, tt.want)
			}
			for i := range tt.want {
				if math.Abs(got.Values[i]-tt.want[i]) > 1e-9 {
					t.Errorf("values[%d] = %v, want %v", i, got.Values[i], tt.want[i])
				}
			}
			if got.Kept != tt.kept {
				t.Errorf("kept = %d, want %d", got.Kept, tt.kept)
			}
			if got.TotalWeight != tt.total {
				t.Errorf("total_weight = %v, want %v", got.TotalWeight, tt.total)
			}
		})
	}
}

func TestHandleWeightedPercentileErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   PercentileInput
		wantMsg string
	}{
		{"no samples", PercentileInput{}, "no samples"},
		{"rank out of range", PercentileInput{OutputInput: OutputInput{Ranks: []float64{101}}, Samples: []float64{1}}, "ranks[0]"},
		{"length mismatch", PercentileInput{Samples: []float64{1, 2}, Weights: []float64{1}}, "same length"},
		{"all zero weights", PercentileInput{Samples: []float64{1, 2}, Weights: []float64{0, 0}}, "positive weight"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handleWeightedPercentile(context.Background(), nil, tt.input)
			if err != nil {
				t.Fatalf("handleWeightedPercentile returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected IsError to be true")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.wantMsg) {
				t.Errorf("error text = %q, want it to contain %q", text, tt.wantMsg)
			}
		})
	}
}

func TestHandleAnalyzeDatasets(t *testing.T) {
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "latency.csv")
	if err := os.WriteFile(csvPath, []byte("value,weight\n10,3\n20,1\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	jsonPath := filepath.Join(tmpDir, "sizes.json")
	content := `[{"name": "ok", "samples": [1, 2, 3, 4]}, {"name": "zero", "samples": [1], "weights": [0]}]`
	if err := os.WriteFile(jsonPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	input := DatasetsInput{
		OutputInput: OutputInput{Ranks: []float64{25, 50}, Format: "json"},
		Paths:       []string{csvPath, jsonPath},
		Summary:     true,
	}
	result, _, err := handleAnalyzeDatasets(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("handleAnalyzeDatasets returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var report evaluate.Report
	if err := json.Unmarshal([]byte(resultText(t, result)), &report); err != nil {
		t.Fatalf("result is not a JSON report: %v", err)
	}
	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}

	latency := report.Results[0]
	if latency.Name != "latency" || latency.Summary == nil {
		t.Errorf("latency result = %+v, want name latency with summary", latency)
	}
	if math.Abs(latency.Values[1]-12.5) > 1e-9 {
		t.Errorf("latency p50 = %v, want 12.5", latency.Values[1])
	}
	if math.Abs(report.Results[1].Values[0]-1.5) > 1e-9 {
		t.Errorf("ok p25 = %v, want 1.5", report.Results[1].Values[0])
	}
	if report.Results[2].Error == "" {
		t.Error("zero-weight dataset should carry an error")
	}
}

func TestHandleAnalyzeDatasetsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	for name, content := range map[string]string{
		"b.txt":    "4\n",
		"a.csv":    "value\n1\n3\n",
		"notes.md": "ignored\n",
	} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}

	input := DatasetsInput{
		OutputInput: OutputInput{Ranks: []float64{50}, Format: "json"},
		Paths:       []string{tmpDir},
	}
	result, _, err := handleAnalyzeDatasets(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("handleAnalyzeDatasets returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var report evaluate.Report
	if err := json.Unmarshal([]byte(resultText(t, result)), &report); err != nil {
		t.Fatalf("result is not a JSON report: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	if report.Results[0].Name != "a" || report.Results[1].Name != "b" {
		t.Errorf("names = %q, %q, want a, b", report.Results[0].Name, report.Results[1].Name)
	}
	if math.Abs(report.Results[0].Values[0]-2) > 1e-9 {
		t.Errorf("a p50 = %v, want 2", report.Results[0].Values[0])
	}
}

func TestHandleAnalyzeDatasetsErrors(t *testing.T) {
	tmpDir := t.TempDir()
	badPath := filepath.Join(tmpDir, "bad.csv")
	if err := os.WriteFile(badPath, []byte("value\nabc\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	zeroPath := filepath.Join(tmpDir, "zero.txt")
	if err := os.WriteFile(zeroPath, []byte("1 0\n2 0\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	emptyDir := filepath.Join(tmpDir, "empty")
	if err := os.Mkdir(emptyDir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	tests := []struct {
		name    string
		input   DatasetsInput
		wantMsg string
	}{
		{"no paths", DatasetsInput{}, "no paths"},
		{"stdin", DatasetsInput{Paths: []string{"-"}}, "stdin"},
		{"missing file", DatasetsInput{Paths: []string{filepath.Join(tmpDir, "missing.csv")}}, "missing.csv"},
		{"parse failure", DatasetsInput{Paths: []string{badPath}}, "invalid value"},
		{"unknown input format", DatasetsInput{Paths: []string{badPath}, InputFormat: "parquet"}, "unknown input format"},
		{"every dataset failed", DatasetsInput{Paths: []string{zeroPath}}, "all datasets failed"},
		{"directory without samples", DatasetsInput{Paths: []string{emptyDir}}, "no sample files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := handleAnalyzeDatasets(context.Background(), nil, tt.input)
			if err != nil {
				t.Fatalf("handleAnalyzeDatasets returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected IsError to be true")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.wantMsg) {
				t.Errorf("error text = %q, want it to contain %q", text, tt.wantMsg)
			}
		})
	}
}

func TestParsePrompt(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantDesc string
		wantBody string
		wantArgs int
	}{
		{"with frontmatter", "---\ndescription: Median\n---\nBody text\n", "Median", "Body text\n", 0},
		{"with arguments", "---\ndescription: D\narguments:\n  - name: paths\n    required: true\n---\nLoad {{paths}}\n", "D", "Load {{paths}}\n", 1},
		{"without frontmatter", "Just a body\n", "", "Just a body\n", 0},
		{"unterminated", "---\ndescription: x\nno end", "", "---\ndescription: x\nno end", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePrompt("example", []byte(tt.content))
			if err != nil {
				t.Fatalf("parsePrompt() error: %v", err)
			}
			if p.Name != "example" {
				t.Errorf("name = %q, want example", p.Name)
			}
			if p.Description != tt.wantDesc {
				t.Errorf("description = %q, want %q", p.Description, tt.wantDesc)
			}
			if p.Body != tt.wantBody {
				t.Errorf("body = %q, want %q", p.Body, tt.wantBody)
			}
			if len(p.Arguments) != tt.wantArgs {
				t.Errorf("arguments = %+v, want %d", p.Arguments, tt.wantArgs)
			}
		})
	}

	if _, err := parsePrompt("bad", []byte("---\ndescription: [unclosed\n---\nbody\n")); err == nil {
		t.Error("parsePrompt() should reject malformed frontmatter")
	}
}

func TestPromptRender(t *testing.T) {
	p := prompt{
		Name: "review",
		Arguments: []promptArgument{
			{Name: "paths", Required: true},
			{Name: "threshold"},
		},
		Body: "Review {{paths}} with threshold {{threshold}}.",
	}

	got, err := p.render(map[string]string{"paths": "a.csv, b.csv"})
	if err != nil {
		t.Fatalf("render() error: %v", err)
	}
	if want := "Review a.csv, b.csv with threshold none given."; got != want {
		t.Errorf("render() = %q, want %q", got, want)
	}

	if _, err := p.render(map[string]string{"paths": "  "}); err == nil || !strings.Contains(err.Error(), "paths") {
		t.Errorf("render() without a required argument error = %v", err)
	}
}

// TestEmbeddedPrompts verifies every embedded prompt parses, has a
// description, names a tool, and renders with its required arguments.
func TestEmbeddedPrompts(t *testing.T) {
	prompts, err := loadPrompts()
	if err != nil {
		t.Fatalf("loadPrompts() error: %v", err)
	}
	if len(prompts) == 0 {
		t.Fatal("no embedded prompts")
	}

	for _, p := range prompts {
		t.Run(p.Name, func(t *testing.T) {
			if p.Description == "" {
				t.Error("prompt description is empty")
			}
			if got := p.mcpPrompt(); got.Name != p.Name || len(got.Arguments) != len(p.Arguments) {
				t.Errorf("mcpPrompt() = %+v", got)
			}

			args := make(map[string]string)
			for _, arg := range p.Arguments {
				args[arg.Name] = "samples/" + arg.Name
			}
			result, err := p.handler()(context.Background(), &mcp.GetPromptRequest{
				Params: &mcp.GetPromptParams{Name: p.Name, Arguments: args},
			})
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if len(result.Messages) != 1 || result.Messages[0].Role != "user" {
				t.Fatalf("unexpected messages: %+v", result.Messages)
			}
			text, ok := result.Messages[0].Content.(*mcp.TextContent)
			if !ok || !strings.Contains(text.Text, "`") {
				t.Errorf("prompt body should name a tool: %+v", result.Messages[0].Content)
			}
			if strings.Contains(text.Text, "{{") {
				t.Errorf("unrendered placeholder in:\n%s", text.Text)
			}
		})
	}
}

func TestManifestVersion(t *testing.T) {
	tests := map[string]string{
		"":       "0.0.0",
		"dev":    "0.0.0",
		"v1.4.0": "1.4.0",
		"2.0.1":  "2.0.1",
	}
	for in, want := range tests {
		if got := manifestVersion(in); got != want {
			t.Errorf("manifestVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateManifest(t *testing.T) {
	data, err := GenerateManifest("1.2.3")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest.Name != "io.github.panbanda/wpct" {
		t.Errorf("Name = %q", manifest.Name)
	}
	if manifest.Version != "1.2.3" {
		t.Errorf("Version = %q, want 1.2.3", manifest.Version)
	}
	if len(manifest.Packages) != 1 || manifest.Packages[0].Identifier != "ghcr.io/panbanda/wpct:1.2.3" {
		t.Errorf("Packages = %+v", manifest.Packages)
	}
	if manifest.Packages[0].Transport.Type != "stdio" {
		t.Errorf("Transport = %q, want stdio", manifest.Packages[0].Transport.Type)
	}

	data, err = GenerateManifest("")
	if err != nil {
		t.Fatalf("GenerateManifest() error: %v", err)
	}
	if !strings.Contains(string(data), `"version": "0.0.0"`) {
		t.Errorf("empty version should become 0.0.0:\n%s", data)
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is not TextContent: %T", result.Content[0])
	}
	return text.Text
}

func decodePercentileResult(t *testing.T, result *mcp.CallToolResult) PercentileResult {
	t.Helper()
	var got PercentileResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return got
}
