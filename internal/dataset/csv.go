package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

func parseCSV(name string, data []byte, opts Options) ([]*Dataset, error) {
	r := csv.NewReader(bytes.NewReader(trimBOM(data)))
	r.Comma = opts.Delimiter
	if r.Comma == 0 {
		r.Comma = ','
	}
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	valueIdx, weightIdx := 0, -1
	headerDone := opts.NoHeader

	ds := &Dataset{Name: name}
	var weights []float64

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)

		if !headerDone {
			headerDone = true
			valueIdx, weightIdx, err = locateColumns(record, opts)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		if opts.NoHeader && len(ds.Samples) == 0 && len(record) > 1 {
			weightIdx = 1
		}

		if valueIdx >= len(record) || (weightIdx >= 0 && weightIdx >= len(record)) {
			return nil, fmt.Errorf("line %d: expected at least %d fields, got %d", line, max(valueIdx, weightIdx)+1, len(record))
		}

		v, err := parseNumber(record[valueIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value: %w", line, err)
		}
		ds.Samples = append(ds.Samples, v)

		if weightIdx >= 0 {
			w, err := parseNumber(record[weightIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid weight: %w", line, err)
			}
			weights = append(weights, w)
		}
	}

	ds.Weights = weights
	return []*Dataset{ds}, nil
}

// locateColumns finds the value and weight columns in a header row. A missing
// weight column means the samples are unweighted.
func locateColumns(header []string, opts Options) (int, int, error) {
	valueIdx, weightIdx := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case strings.EqualFold(h, opts.ValueColumn):
			valueIdx = i
		case opts.WeightColumn != "" && strings.EqualFold(h, opts.WeightColumn):
			weightIdx = i
		}
	}
	if valueIdx < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMissingColumn, opts.ValueColumn)
	}
	return valueIdx, weightIdx, nil
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
