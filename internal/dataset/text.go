package dataset

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// parseText reads one sample per line, optionally followed by its weight.
// Blank lines and anything after '#' are ignored. Lines without a weight get
// weight 1; if no line has a weight the dataset is unweighted.
func parseText(name string, data []byte) ([]*Dataset, error) {
	ds := &Dataset{Name: name}
	var weights []float64
	weighted := false

	scanner := bufio.NewScanner(bytes.NewReader(trimBOM(data)))
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)

		switch len(fields) {
		case 0:
			continue
		case 1, 2:
		default:
			return nil, fmt.Errorf("line %d: expected a value and an optional weight, got %d fields", line, len(fields))
		}

		v, err := parseNumber(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value: %w", line, err)
		}
		w := 1.0
		if len(fields) == 2 {
			weighted = true
			if w, err = parseNumber(fields[1]); err != nil {
				return nil, fmt.Errorf("line %d: invalid weight: %w", line, err)
			}
		}
		ds.Samples = append(ds.Samples, v)
		weights = append(weights, w)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if weighted {
		ds.Weights = weights
	}
	return []*Dataset{ds}, nil
}
