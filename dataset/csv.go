package dataset

import (
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// IngestStats reports what happened to a bulk CSV load. Rows with the wrong
// cell count are dropped individually, never the whole batch.
type IngestStats struct {
	RowsIngested int `json:"rows_ingested"`
	RowsDropped  int `json:"rows_dropped"`
}

// ParseCSV parses raw CSV bytes into a Table. The delimiter is ';' if the
// header line contains one, else ','. Surrounding quotes are stripped from
// every cell. Payloads that are not valid UTF-8 are decoded as GBK first.
func ParseCSV(data []byte) (*Table, IngestStats, error) {
	var stats IngestStats

	if !utf8.Valid(data) {
		decoded, _, err := transform.Bytes(simplifiedchinese.GBK.NewDecoder(), data)
		if err == nil {
			data = decoded
		}
	}

	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, stats, errors.New("empty csv payload")
	}

	delim := DetectDelimiter(lines[0])
	header := splitCells(lines[0], delim)
	if len(header) == 0 {
		return nil, stats, errors.New("empty csv header")
	}

	table := &Table{Columns: header}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := splitCells(line, delim)
		if len(cells) != len(header) {
			stats.RowsDropped++
			continue
		}
		values := make(map[string]string, len(header))
		for i, col := range header {
			values[col] = cells[i]
		}
		table.Rows = append(table.Rows, TabularRow{Values: values})
		stats.RowsIngested++
	}
	return table, stats, nil
}

// DetectDelimiter picks ';' when the header uses it, ',' otherwise.
func DetectDelimiter(header string) string {
	if strings.Contains(header, ";") {
		return ";"
	}
	return ","
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimPrefix(s, "\uFEFF")
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitCells(line, delim string) []string {
	parts := strings.Split(line, delim)
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = stripQuotes(strings.TrimSpace(p))
	}
	return cells
}

func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// TextSamplesFromTable maps a two-ish column table onto labeled texts. It
// prefers columns named "text" and "label" and falls back to the first two
// header columns. Rows with an empty label are skipped.
func TextSamplesFromTable(t *Table) ([]TextSample, error) {
	if len(t.Columns) < 2 {
		return nil, errors.New("text dataset needs a text and a label column")
	}
	textCol, labelCol := t.Columns[0], t.Columns[1]
	for _, c := range t.Columns {
		switch strings.ToLower(c) {
		case "text":
			textCol = c
		case "label":
			labelCol = c
		}
	}
	var samples []TextSample
	for _, row := range t.Rows {
		label := strings.TrimSpace(row.Values[labelCol])
		if label == "" {
			continue
		}
		samples = append(samples, TextSample{Text: row.Values[textCol], Label: label})
	}
	return samples, nil
}
