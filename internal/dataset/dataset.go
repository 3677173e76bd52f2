// Package dataset loads weighted sample sets from files and streams.
package dataset

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	ErrUnknownFormat = errors.New("unknown input format")
	ErrNoData        = errors.New("no samples found")
	ErrMissingColumn = errors.New("column not found in header")
)

// Format identifies how a sample file is encoded.
type Format string

const (
	FormatAuto Format = "auto"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormat converts a string to Format. Unknown names are an error rather
// than a silent fallback, since guessing wrong produces wrong numbers.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// DetectFormat picks a format from the file extension, defaulting to text.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Dataset is one weighted sample set. Weights and Sorter may be nil.
type Dataset struct {
	Name    string    `json:"name" toon:"name"`
	Source  string    `json:"source" toon:"source"`
	Digest  string    `json:"digest" toon:"digest"`
	Samples []float64 `json:"samples" toon:"samples"`
	Weights []float64 `json:"weights,omitempty" toon:"weights"`
	Sorter  []int     `json:"sorter,omitempty" toon:"sorter"`
}

// Options control parsing.
type Options struct {
	Format       Format
	ValueColumn  string
	WeightColumn string
	Delimiter    rune
	NoHeader     bool
}

// DefaultOptions matches the default configuration.
func DefaultOptions() Options {
	return Options{
		Format:       FormatAuto,
		ValueColumn:  "value",
		WeightColumn: "weight",
		Delimiter:    ',',
	}
}

// Stdin is the path that selects standard input.
const Stdin = "-"

// Load reads every dataset in the file at path. Structured formats may hold
// several datasets; CSV and text files hold one, named after the file.
func Load(path string, opts Options) ([]*Dataset, error) {
	var r io.Reader
	name := path
	if path == Stdin {
		r = os.Stdin
		name = "stdin"
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatText
		if path != Stdin {
			format = DetectFormat(path)
		}
	}

	datasets, err := Parse(name, r, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, ds := range datasets {
		ds.Source = path
	}
	return datasets, nil
}

// Parse decodes datasets from r. name is used for datasets that do not carry
// their own.
func Parse(name string, r io.Reader, format Format, opts Options) ([]*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var datasets []*Dataset
	switch format {
	case FormatCSV:
		datasets, err = parseCSV(name, data, opts)
	case FormatJSON:
		datasets, err = parseJSON(name, data)
	case FormatYAML:
		datasets, err = parseYAML(name, data)
	case FormatText:
		datasets, err = parseText(name, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	digest := HashBytes(data)
	for i, ds := range datasets {
		if len(ds.Samples) == 0 {
			return nil, fmt.Errorf("dataset %q: %w", ds.Name, ErrNoData)
		}
		if ds.Name == "" {
			ds.Name = name
			if len(datasets) > 1 {
				ds.Name = fmt.Sprintf("%s[%d]", name, i)
			}
		}
		ds.Digest = digest
	}
	return datasets, nil
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// trimBOM drops a UTF-8 byte order mark, which spreadsheet exports often add.
func trimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
}
