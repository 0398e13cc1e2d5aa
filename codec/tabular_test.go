package codec

import (
	"math"
	"reflect"
	"testing"

	"mllab/dataset"
)

func row(pairs ...string) dataset.TabularRow {
	values := make(map[string]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		values[pairs[i]] = pairs[i+1]
	}
	return dataset.TabularRow{Values: values}
}

func classificationTable() *dataset.Table {
	return &dataset.Table{
		Columns: []string{"age", "city", "label"},
		Rows: []dataset.TabularRow{
			row("age", "20", "city", "berlin", "label", "yes"),
			row("age", "30", "city", "paris", "label", "no"),
			row("age", "40", "city", "berlin", "label", "yes"),
		},
	}
}

func TestFitTabularLayout(t *testing.T) {
	c, err := FitTabular(classificationTable(), "label", dataset.TaskClassification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One scaled numeric plus a two-value one-hot block.
	if c.Dim() != 3 {
		t.Fatalf("unexpected dim: %d", c.Dim())
	}
	if c.FeatureCount() != 2 {
		t.Fatalf("unexpected feature count: %d", c.FeatureCount())
	}
	if !reflect.DeepEqual(c.Labels(), []string{"yes", "no"}) {
		t.Fatalf("unexpected labels: %v", c.Labels())
	}
	if c.NumClasses() != 2 {
		t.Fatalf("unexpected class count: %d", c.NumClasses())
	}
}

func TestTabularTransformScalingAndOneHot(t *testing.T) {
	c, err := FitTabular(classificationTable(), "label", dataset.TaskClassification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vec, err := c.Transform(row("age", "30", "city", "berlin"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(vec[0]-0.5) > 1e-9 {
		t.Fatalf("expected age 30 to scale to 0.5, got %v", vec[0])
	}
	// berlin was seen first and owns the first one-hot slot.
	if vec[1] != 1 || vec[2] != 0 {
		t.Fatalf("unexpected one-hot block: %v", vec[1:])
	}

	// Boundary values land exactly on 0 and 1.
	lo, _ := c.Transform(row("age", "20", "city", "paris"))
	hi, _ := c.Transform(row("age", "40", "city", "paris"))
	if lo[0] != 0 || hi[0] != 1 {
		t.Fatalf("expected [0,1] bounds, got %v and %v", lo[0], hi[0])
	}
}

func TestTabularTransformUnseenAndMalformedValues(t *testing.T) {
	c, err := FitTabular(classificationTable(), "label", dataset.TaskClassification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec, err := c.Transform(row("age", "not-a-number", "city", "tokyo"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Malformed numeric and unseen category both contribute zeros.
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero at %d, got %v", i, v)
		}
	}
}

func TestTabularDegenerateColumnScalesToZero(t *testing.T) {
	table := &dataset.Table{
		Columns: []string{"constant", "label"},
		Rows: []dataset.TabularRow{
			row("constant", "7", "label", "a"),
			row("constant", "7", "label", "b"),
			row("constant", "7", "label", "a"),
		},
	}
	c, err := FitTabular(table, "label", dataset.TaskClassification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec, err := c.Transform(row("constant", "7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 0 {
		t.Fatalf("expected degenerate column to scale to 0, got %v", vec[0])
	}
}

func TestTabularEncodeLabelOrdinals(t *testing.T) {
	c, err := FitTabular(classificationTable(), "label", dataset.TaskClassification)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx, err := c.EncodeLabel("yes"); err != nil || idx != 0 {
		t.Fatalf("expected yes=0, got %d (%v)", idx, err)
	}
	if idx, err := c.EncodeLabel("no"); err != nil || idx != 1 {
		t.Fatalf("expected no=1, got %d (%v)", idx, err)
	}
	if _, err := c.EncodeLabel("maybe"); err == nil {
		t.Fatal("expected error for unseen label")
	}
}

func TestTabularRegressionTargetRange(t *testing.T) {
	table := &dataset.Table{
		Columns: []string{"x", "price"},
		Rows: []dataset.TabularRow{
			row("x", "1", "price", "10"),
			row("x", "2", "price", "200"),
			row("x", "3", "price", "50"),
		},
	}
	c, err := FitTabular(table, "price", dataset.TaskRegression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	min, max := c.TargetRange()
	if min != 10 || max != 200 {
		t.Fatalf("unexpected range: [%v, %v]", min, max)
	}
	if c.ConstantTarget() {
		t.Fatal("range target reported constant")
	}
	if got := c.NormalizeTarget(105); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 105 to normalize to 0.5, got %v", got)
	}
	if got := c.DenormalizeTarget(0.5); math.Abs(got-105) > 1e-9 {
		t.Fatalf("expected 0.5 to denormalize to 105, got %v", got)
	}
}

func TestTabularConstantTarget(t *testing.T) {
	table := &dataset.Table{
		Columns: []string{"x", "price"},
		Rows: []dataset.TabularRow{
			row("x", "1", "price", "42"),
			row("x", "2", "price", "42"),
		},
	}
	c, err := FitTabular(table, "price", dataset.TaskRegression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.ConstantTarget() {
		t.Fatal("expected constant target")
	}
	// The collapsed span still produces finite values.
	if got := c.DenormalizeTarget(0.7); math.Abs(got-42.7) > 1e-9 {
		t.Fatalf("unexpected denormalized value: %v", got)
	}
}

func TestTabularRegressionRejectsNonNumericTarget(t *testing.T) {
	table := &dataset.Table{
		Columns: []string{"x", "price"},
		Rows: []dataset.TabularRow{
			row("x", "1", "price", "cheap"),
		},
	}
	if _, err := FitTabular(table, "price", dataset.TaskRegression); err == nil {
		t.Fatal("expected error for non-numeric regression target")
	}
}

func TestFitTabularUnknownTarget(t *testing.T) {
	if _, err := FitTabular(classificationTable(), "missing", dataset.TaskClassification); err == nil {
		t.Fatal("expected error for unknown target")
	}
}
