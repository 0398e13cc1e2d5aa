package dataset

import (
	"errors"
	"strconv"
	"strings"
)

// ColumnKind classifies a tabular column by its observed values.
type ColumnKind string

const (
	ColumnNumeric     ColumnKind = "numeric"
	ColumnCategorical ColumnKind = "categorical"
)

// numericFraction is the share of non-empty cells that must parse as a
// number for a column to count as numeric.
const numericFraction = 0.8

// maxSampleValues bounds how many distinct values ColumnInfo keeps around
// for schema previews.
const maxSampleValues = 5

// ColumnInfo describes one tabular column. It must be recomputed whenever
// the dataset changes.
type ColumnInfo struct {
	Name         string     `json:"name"`
	Kind         ColumnKind `json:"kind"`
	UniqueCount  int        `json:"unique_count"`
	SampleValues []string   `json:"sample_values"`

	// Numeric columns only.
	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
}

// Table is an ordered tabular dataset: header order is the stable column
// order used for feature layout.
type Table struct {
	Columns []string
	Rows    []TabularRow
}

// NumRows returns the row count.
func (t *Table) NumRows() int { return len(t.Rows) }

// HasColumn reports whether name is one of the header columns.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Append adds a row. The row must carry exactly the header columns.
func (t *Table) Append(row TabularRow) error {
	if len(row.Values) != len(t.Columns) {
		return errors.New("mismatched column count")
	}
	for _, c := range t.Columns {
		if _, ok := row.Values[c]; !ok {
			return errors.New("mismatched column count")
		}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// InferColumns computes ColumnInfo for every column in header order.
func (t *Table) InferColumns() []ColumnInfo {
	infos := make([]ColumnInfo, 0, len(t.Columns))
	for _, name := range t.Columns {
		infos = append(infos, t.inferColumn(name))
	}
	return infos
}

// Column computes ColumnInfo for a single named column.
func (t *Table) Column(name string) (ColumnInfo, error) {
	if !t.HasColumn(name) {
		return ColumnInfo{}, errors.New("unknown column: " + name)
	}
	return t.inferColumn(name), nil
}

func (t *Table) inferColumn(name string) ColumnInfo {
	info := ColumnInfo{Name: name, Kind: ColumnCategorical}

	seen := make(map[string]bool)
	var nonEmpty, numeric int
	var sum, min, max float64
	for _, row := range t.Rows {
		raw := strings.TrimSpace(row.Values[name])
		if raw == "" {
			continue
		}
		nonEmpty++
		if !seen[raw] {
			seen[raw] = true
			if len(info.SampleValues) < maxSampleValues {
				info.SampleValues = append(info.SampleValues, raw)
			}
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			if numeric == 0 || v < min {
				min = v
			}
			if numeric == 0 || v > max {
				max = v
			}
			numeric++
			sum += v
		}
	}
	info.UniqueCount = len(seen)

	if nonEmpty > 0 && float64(numeric)/float64(nonEmpty) > numericFraction {
		info.Kind = ColumnNumeric
		info.Min = min
		info.Max = max
		info.Mean = sum / float64(numeric)
	}
	return info
}

// Schema summarizes the whole table for previews and status reports.
type Schema struct {
	Columns []ColumnInfo `json:"columns"`
	NumRows int          `json:"num_rows"`
	NumCols int          `json:"num_cols"`
}

// Schema builds the current dataset schema.
func (t *Table) Schema() Schema {
	return Schema{
		Columns: t.InferColumns(),
		NumRows: len(t.Rows),
		NumCols: len(t.Columns),
	}
}

// Preview returns up to n rows as ordered string cells.
type Preview struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

func (t *Table) Preview(n int) Preview {
	if n <= 0 {
		n = 10
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	p := Preview{Columns: t.Columns, Rows: make([][]string, 0, n)}
	for _, row := range t.Rows[:n] {
		cells := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cells[i] = row.Values[c]
		}
		p.Rows = append(p.Rows, cells)
	}
	return p
}

// TaskPolicy controls classification-vs-regression auto-detection. A numeric
// target with at most MaxClassUniques distinct values is treated as a class
// column. This is a policy default, not a property of the data.
type TaskPolicy struct {
	MaxClassUniques int
}

// DefaultTaskPolicy mirrors the behavior users expect from small classroom
// datasets: numeric grade-like columns with few levels classify.
func DefaultTaskPolicy() TaskPolicy { return TaskPolicy{MaxClassUniques: 10} }

// DetectTask picks the task for a target column from its shape.
func (t *Table) DetectTask(target string, policy TaskPolicy) (Task, error) {
	info, err := t.Column(target)
	if err != nil {
		return "", err
	}
	if policy.MaxClassUniques <= 0 {
		policy = DefaultTaskPolicy()
	}
	if info.Kind == ColumnNumeric && info.UniqueCount > policy.MaxClassUniques {
		return TaskRegression, nil
	}
	return TaskClassification, nil
}
