package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

// Dataset defines tabular export content. Rows missing a header render as empty cells.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// WithFixedHeaders returns a copy whose headers start with leading and continue with every other key seen in the rows, sorted.
func (d Dataset) WithFixedHeaders(leading ...string) Dataset {
	seen := make(map[string]bool, len(leading))
	headers := append([]string(nil), leading...)
	for _, h := range leading {
		seen[h] = true
	}
	var extra []string
	for _, row := range d.Rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	d.Headers = append(headers, extra...)
	return d
}

// CSVExporter renders Dataset records into CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := e.Write(buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the dataset to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
