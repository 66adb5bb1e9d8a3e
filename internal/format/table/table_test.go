package table

import (
	"reflect"
	"testing"
)

func TestFormatAlignsColumns(t *testing.T) {
	got := Format([][]string{
		{"0", "echo", "hello"},
		{"127", "missing-binary", ""},
	}, []Alignment{AlignRight, AlignLeft, AlignLeft})
	want := []string{
		"  0  echo            hello",
		"127  missing-binary",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rows\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatHandlesRaggedAndWideCells(t *testing.T) {
	got := Format([][]string{
		{"日本", "x"},
		{"ab"},
	}, nil)
	want := []string{"日本  x", "ab"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rows %q", got)
	}
	if Format(nil, nil) != nil {
		t.Fatalf("expected nil for no rows")
	}
}
