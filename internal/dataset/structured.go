package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when a JSON or YAML document does not match
// the dataset schema.
var ErrInvalidDocument = errors.New("document does not match dataset schema")

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/panbanda/wpct/dataset.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// record is the document form of a dataset.
type record struct {
	Name    string    `json:"name"`
	Samples []float64 `json:"samples"`
	Weights []float64 `json:"weights"`
	Sorter  []int     `json:"sorter"`
}

// parseJSON accepts a single dataset object or an array of them.
func parseJSON(name string, data []byte) ([]*Dataset, error) {
	data = trimBOM(data)

	schema, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile dataset schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var records []record
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
	} else {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, err
		}
		records = []record{rec}
	}

	datasets := make([]*Dataset, len(records))
	for i, rec := range records {
		datasets[i] = &Dataset{
			Name:    rec.Name,
			Samples: rec.Samples,
			Weights: rec.Weights,
			Sorter:  rec.Sorter,
		}
	}
	return datasets, nil
}

// parseYAML converts the document to JSON so both formats share one schema.
func parseYAML(name string, data []byte) ([]*Dataset, error) {
	var doc any
	if err := yaml.Unmarshal(trimBOM(data), &doc); err != nil {
		return nil, err
	}
	converted, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return parseJSON(name, converted)
}
