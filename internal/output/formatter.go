// Package output renders percentile reports as text tables, markdown, JSON
// or TOON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	toon "github.com/toon-format/toon-go"
)

// Format represents an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat converts a string to Format, defaulting to text.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "markdown", "md":
		return FormatMarkdown
	case "toon":
		return FormatTOON
	default:
		return FormatText
	}
}

// Renderable is data with its own text and markdown layout. RenderData is
// what JSON and TOON encode.
type Renderable interface {
	RenderText(w io.Writer, colored bool) error
	RenderMarkdown(w io.Writer) error
	RenderData() any
}

// Formatter writes values in one Format.
type Formatter struct {
	format  Format
	w       io.Writer
	closer  io.Closer
	colored bool
}

// NewFormatter writes to w.
func NewFormatter(format Format, w io.Writer, colored bool) *Formatter {
	return &Formatter{format: format, w: w, colored: colored}
}

// NewFileFormatter creates (or truncates) path and writes to it. Files never
// get color codes.
func NewFileFormatter(format Format, path string) (*Formatter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Formatter{format: format, w: file, closer: file}, nil
}

// Close closes the output file, if there is one.
func (f *Formatter) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Writer returns the destination.
func (f *Formatter) Writer() io.Writer {
	return f.w
}

// Format returns the configured format.
func (f *Formatter) Format() Format {
	return f.format
}

// Output writes data. A Renderable lays itself out for text and markdown;
// any other value is encoded, as a fenced JSON block in markdown and as JSON
// in text.
func (f *Formatter) Output(data any) error {
	r, renderable := data.(Renderable)
	payload := data
	if renderable {
		payload = r.RenderData()
	}

	switch f.format {
	case FormatJSON:
		return writeJSON(f.w, payload)
	case FormatTOON:
		return writeTOON(f.w, payload)
	case FormatMarkdown:
		if renderable {
			return r.RenderMarkdown(f.w)
		}
		fmt.Fprintln(f.w, "```json")
		if err := writeJSON(f.w, payload); err != nil {
			return err
		}
		_, err := fmt.Fprintln(f.w, "```")
		return err
	default:
		if renderable {
			return r.RenderText(f.w, f.colored)
		}
		return writeJSON(f.w, payload)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTOON(w io.Writer, v any) error {
	out, err := toon.Marshal(v, toon.WithIndent(2))
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// Table is one titled table. Columns whose cells are all numbers (or "-")
// are right-aligned. Data, when set, replaces the cells in JSON and TOON.
type Table struct {
	Title   string     `json:"-"`
	Headers []string   `json:"-"`
	Rows    [][]string `json:"-"`
	Footer  []string   `json:"-"`
	Data    any        `json:"data,omitempty"`
}

// NewTable creates a table.
func NewTable(title string, headers []string, rows [][]string, footer []string, data any) *Table {
	return &Table{Title: title, Headers: headers, Rows: rows, Footer: footer, Data: data}
}

// RenderData returns Data, or one header-keyed map per row. Cells missing
// from short rows are left out.
func (t *Table) RenderData() any {
	if t.Data != nil {
		return t.Data
	}
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(row))
		for j, cell := range row {
			if j < len(t.Headers) {
				rec[t.Headers[j]] = cell
			}
		}
		records = append(records, rec)
	}
	return records
}

// numericColumns marks the columns to right-align.
func (t *Table) numericColumns() []bool {
	numeric := make([]bool, len(t.Headers))
	for j := range numeric {
		seen := false
		numeric[j] = true
		for _, row := range t.Rows {
			if j >= len(row) || row[j] == "" || row[j] == "-" {
				continue
			}
			seen = true
			if _, err := strconv.ParseFloat(strings.ReplaceAll(row[j], ",", ""), 64); err != nil {
				numeric[j] = false
				break
			}
		}
		numeric[j] = numeric[j] && seen
	}
	return numeric
}

func writeTitle(w io.Writer, title string, colored bool, attrs ...color.Attribute) {
	if title == "" {
		return
	}
	if colored {
		color.New(attrs...).Fprintln(w, title)
	} else {
		fmt.Fprintln(w, title)
	}
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", utf8.RuneCountInString(title)))
}

// RenderText draws a borderless table. Header and footer cells are printed
// as given so labels like p99.9 survive.
func (t *Table) RenderText(w io.Writer, colored bool) error {
	writeTitle(w, t.Title, colored, color.Bold)

	aligns := make([]tw.Align, len(t.Headers))
	for j, numeric := range t.numericColumns() {
		aligns[j] = tw.AlignLeft
		if numeric {
			aligns[j] = tw.AlignRight
		}
	}
	verbatim := tw.CellFormatting{AutoFormat: tw.Off}
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Formatting: verbatim,
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft, PerColumn: aligns},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft, PerColumn: aligns},
			},
			Footer: tw.CellConfig{
				Formatting: verbatim,
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft, PerColumn: aligns},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders:  tw.BorderNone,
			Settings: tw.Settings{Separators: tw.Separators{BetweenColumns: tw.Off}},
		}),
	)

	table.Header(t.Headers)
	if err := table.Bulk(t.Rows); err != nil {
		return err
	}
	if len(t.Footer) > 0 {
		footer := make([]any, len(t.Footer))
		for i, cell := range t.Footer {
			footer[i] = cell
		}
		table.Footer(footer...)
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

// RenderMarkdown writes a pipe table with numeric columns right-aligned.
func (t *Table) RenderMarkdown(w io.Writer) error {
	if t.Title != "" {
		fmt.Fprintf(w, "## %s\n\n", t.Title)
	}

	writeRow := func(cells []string) {
		escaped := make([]string, len(cells))
		for i, c := range cells {
			escaped[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(escaped, " | "))
	}

	writeRow(t.Headers)
	rule := make([]string, len(t.Headers))
	for j, numeric := range t.numericColumns() {
		rule[j] = "---"
		if numeric {
			rule[j] = "---:"
		}
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(rule, " | "))
	for _, row := range t.Rows {
		writeRow(row)
	}
	if len(t.Footer) > 0 {
		writeRow(t.Footer)
	}

	_, err := fmt.Fprintln(w)
	return err
}

// Report stacks several sections, such as the percentile table and its
// summary. Data, when set, is what JSON and TOON encode.
type Report struct {
	Title    string       `json:"title,omitempty"`
	Sections []Renderable `json:"-"`
	Data     any          `json:"data,omitempty"`
}

// RenderData returns Data, or the sections' data in order.
func (r *Report) RenderData() any {
	if r.Data != nil {
		return r.Data
	}
	sections := make([]any, len(r.Sections))
	for i, s := range r.Sections {
		sections[i] = s.RenderData()
	}
	return map[string]any{"title": r.Title, "sections": sections}
}

// RenderText writes the title, then each section.
func (r *Report) RenderText(w io.Writer, colored bool) error {
	writeTitle(w, r.Title, colored, color.Bold, color.FgCyan)
	for _, s := range r.Sections {
		if err := s.RenderText(w, colored); err != nil {
			return err
		}
	}
	return nil
}

// RenderMarkdown writes the title as a top-level heading, then each section.
func (r *Report) RenderMarkdown(w io.Writer) error {
	if r.Title != "" {
		fmt.Fprintf(w, "# %s\n\n", r.Title)
	}
	for _, s := range r.Sections {
		if err := s.RenderMarkdown(w); err != nil {
			return err
		}
	}
	return nil
}
