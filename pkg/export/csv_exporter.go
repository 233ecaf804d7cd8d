package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Column maps a row key to its header label.
type Column struct {
	Key   string
	Label string
}

// Sheet defines tabular export content.
type Sheet struct {
	Columns []Column
	Rows    []map[string]string
}

// CSVExporter renders sheets into CSV bytes.
type CSVExporter struct {
	comma rune
}

// NewCSVExporter builds a comma separated exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{comma: ','}
}

// Render produces CSV encoded bytes for the sheet. Missing keys render as empty cells.
func (e *CSVExporter) Render(sheet Sheet) ([]byte, error) {
	if len(sheet.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	writer.Comma = e.comma

	header := make([]string, len(sheet.Columns))
	for i, col := range sheet.Columns {
		header[i] = col.Label
		if header[i] == "" {
			header[i] = col.Key
		}
	}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(sheet.Columns))
	for _, row := range sheet.Rows {
		for i, col := range sheet.Columns {
			record[i] = row[col.Key]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
