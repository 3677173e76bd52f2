package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"", FormatAuto},
		{"auto", FormatAuto},
		{"CSV", FormatCSV},
		{"json", FormatJSON},
		{"yml", FormatYAML},
		{"yaml", FormatYAML},
		{"txt", FormatText},
		{"text", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("parquet")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("a/b/latency.CSV"))
	assert.Equal(t, FormatJSON, DetectFormat("x.json"))
	assert.Equal(t, FormatYAML, DetectFormat("x.yml"))
	assert.Equal(t, FormatYAML, DetectFormat("x.yaml"))
	assert.Equal(t, FormatText, DetectFormat("x.dat"))
	assert.Equal(t, FormatText, DetectFormat("noext"))
}

func TestParseCSV(t *testing.T) {
	t.Run("header with weights", func(t *testing.T) {
		in := "id,value,weight\na,1.5,2\nb,3,0\n# comment\nc,-4,1\n"
		got, err := Parse("lat", strings.NewReader(in), FormatCSV, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "lat", got[0].Name)
		assert.Equal(t, []float64{1.5, 3, -4}, got[0].Samples)
		assert.Equal(t, []float64{2, 0, 1}, got[0].Weights)
		assert.Len(t, got[0].Digest, 64)
	})

	t.Run("header without weight column", func(t *testing.T) {
		got, err := Parse("x", strings.NewReader("Value\n1\n2\n"), FormatCSV, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, got[0].Samples)
		assert.Nil(t, got[0].Weights)
	})

	t.Run("custom columns and delimiter", func(t *testing.T) {
		opts := DefaultOptions()
		opts.ValueColumn = "ms"
		opts.WeightColumn = "hits"
		opts.Delimiter = ';'
		got, err := Parse("x", strings.NewReader("hits;ms\n10;200\n5; 300\n"), FormatCSV, opts)
		require.NoError(t, err)
		assert.Equal(t, []float64{200, 300}, got[0].Samples)
		assert.Equal(t, []float64{10, 5}, got[0].Weights)
	})

	t.Run("no header", func(t *testing.T) {
		opts := DefaultOptions()
		opts.NoHeader = true
		got, err := Parse("x", strings.NewReader("1,3\n2,1\n"), FormatCSV, opts)
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2}, got[0].Samples)
		assert.Equal(t, []float64{3, 1}, got[0].Weights)

		got, err = Parse("x", strings.NewReader("7\n8\n"), FormatCSV, opts)
		require.NoError(t, err)
		assert.Equal(t, []float64{7, 8}, got[0].Samples)
		assert.Nil(t, got[0].Weights)
	})

	t.Run("byte order mark", func(t *testing.T) {
		got, err := Parse("x", strings.NewReader("\xef\xbb\xbfvalue\n4\n"), FormatCSV, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, []float64{4}, got[0].Samples)
	})
}

func TestParseCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"missing value column", "a,b\n1,2\n", "column not found"},
		{"bad value", "value\nabc\n", "line 2: invalid value"},
		{"bad weight", "value,weight\n1,x\n", "line 2: invalid weight"},
		{"short record", "value,weight\n1,2\n3\n", "line 3: expected at least 2 fields"},
		{"header only", "value,weight\n", "no samples found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("x", strings.NewReader(tt.in), FormatCSV, DefaultOptions())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseText(t *testing.T) {
	in := "# latencies\n12.5\n\n13 2  # weighted\n  14\n"
	got, err := Parse("t", strings.NewReader(in), FormatText, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float64{12.5, 13, 14}, got[0].Samples)
	assert.Equal(t, []float64{1, 2, 1}, got[0].Weights)

	got, err = Parse("t", strings.NewReader("1\n2\n3\n"), FormatText, DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, got[0].Weights)

	_, err = Parse("t", strings.NewReader("1 2 3\n"), FormatText, DefaultOptions())
	assert.ErrorContains(t, err, "line 1")

	_, err = Parse("t", strings.NewReader("one\n"), FormatText, DefaultOptions())
	assert.ErrorContains(t, err, "invalid value")

	_, err = Parse("t", strings.NewReader("# nothing\n\n"), FormatText, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoData)
}

func TestParseJSON(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		in := `{"name": "api", "samples": [3, 1, 2], "weights": [1, 0.5, 2], "sorter": [1, 2, 0]}`
		got, err := Parse("file", strings.NewReader(in), FormatJSON, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "api", got[0].Name)
		assert.Equal(t, []float64{3, 1, 2}, got[0].Samples)
		assert.Equal(t, []float64{1, 0.5, 2}, got[0].Weights)
		assert.Equal(t, []int{1, 2, 0}, got[0].Sorter)
	})

	t.Run("array names unnamed entries by index", func(t *testing.T) {
		in := `[{"samples": [1]}, {"name": "b", "samples": [2, 3]}, {"samples": [4]}]`
		got, err := Parse("file", strings.NewReader(in), FormatJSON, DefaultOptions())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "file[0]", got[0].Name)
		assert.Equal(t, "b", got[1].Name)
		assert.Equal(t, "file[2]", got[2].Name)
		assert.Equal(t, got[0].Digest, got[2].Digest)
	})

	invalid := []struct {
		name string
		in   string
	}{
		{"missing samples", `{"name": "x"}`},
		{"empty samples", `{"samples": []}`},
		{"string sample", `{"samples": ["1"]}`},
		{"negative weight", `{"samples": [1], "weights": [-1]}`},
		{"fractional sorter", `{"samples": [1], "sorter": [0.5]}`},
		{"unknown field", `{"samples": [1], "extra": true}`},
		{"empty array", `[]`},
		{"scalar", `42`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("file", strings.NewReader(tt.in), FormatJSON, DefaultOptions())
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	_, err := Parse("file", strings.NewReader(`{"samples": [1`), FormatJSON, DefaultOptions())
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	in := `
- name: east
  samples: [10, 20]
  weights: [3, 1]
- name: west
  samples:
    - 1.5
    - 2.5
`
	got, err := Parse("regions", strings.NewReader(in), FormatYAML, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].Name)
	assert.Equal(t, []float64{10, 20}, got[0].Samples)
	assert.Equal(t, []float64{3, 1}, got[0].Weights)
	assert.Equal(t, "west", got[1].Name)
	assert.Equal(t, []float64{1.5, 2.5}, got[1].Samples)
	assert.Nil(t, got[1].Weights)

	_, err = Parse("regions", strings.NewReader("samples: nope\n"), FormatYAML, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "latency.csv", "value,weight\n1,1\n2,1\n")

	got, err := Load(path, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "latency", got[0].Name)
	assert.Equal(t, path, got[0].Source)
	assert.Equal(t, HashBytes([]byte("value,weight\n1,1\n2,1\n")), got[0].Digest)

	// An explicit format overrides the extension.
	path = writeFile(t, "samples.csv", "5 2\n6\n")
	opts := DefaultOptions()
	opts.Format = FormatText
	got, err = Load(path, opts)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, got[0].Samples)

	_, err = Load(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions())
	assert.Error(t, err)

	path = writeFile(t, "bad.json", `{"samples": "x"}`)
	_, err = Load(path, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), path)
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("1\n2\n"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, HashBytes([]byte("1\n2\n")))
	assert.NotEqual(t, a, HashBytes([]byte("1\n3\n")))
}
