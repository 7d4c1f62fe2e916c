package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type testStruct struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Active  bool   `json:"active"`
	Details string `json:"details" table:"wide"`
	Secret  string `json:"secret" table:"-"`
	hidden  string
}

func TestTableFormatter_Format_Table(t *testing.T) {
	table := &Table{Headers: []string{"ID", "NAME"}}
	table.AddRow("1", "general")
	table.AddRow("2", "random")

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if lines[0] != "ID  NAME" {
		t.Errorf("header = %q, want %q", lines[0], "ID  NAME")
	}
}

func TestTableFormatter_Format_NoHeaders(t *testing.T) {
	table := Table{Headers: []string{"ID"}, Rows: [][]string{{"1"}}}

	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.String() != "1\n" {
		t.Errorf("Format() = %q, want %q", buf.String(), "1\n")
	}
}

func TestTableFormatter_Format_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Format(nil) wrote %q", buf.String())
	}
}

func TestTableFormatter_Format_Slice(t *testing.T) {
	data := []*testStruct{
		{Name: "Alice", Age: 30, Active: true, Details: "detail1", Secret: "s3cr3t"},
		{Name: "Bob", Age: 25, Details: "detail2"},
	}

	tests := []struct {
		name        string
		wide        bool
		wantDetails bool
	}{
		{"narrow", false, false},
		{"wide", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&TableFormatter{Wide: tt.wide}).Format(&buf, data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			out := buf.String()
			for _, want := range []string{"NAME", "AGE", "ACTIVE", "Alice", "30", "false"} {
				if !strings.Contains(out, want) {
					t.Errorf("Format() missing %q", want)
				}
			}
			if got := strings.Contains(out, "DETAILS"); got != tt.wantDetails {
				t.Errorf("DETAILS column present = %v, want %v", got, tt.wantDetails)
			}
			if strings.Contains(out, "s3cr3t") || strings.Contains(out, "SECRET") {
				t.Error("Format() must skip table:\"-\" fields")
			}
		})
	}
}

func TestTableFormatter_Format_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []testStruct{}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Format() = %q, want empty", buf.String())
	}
}

func TestTableFormatter_Format_SingleStruct(t *testing.T) {
	var buf bytes.Buffer
	data := &testStruct{Name: "Alice", Age: 30}
	if err := (&TableFormatter{}).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "FIELD") {
		t.Errorf("Format() = %q, want FIELD/VALUE table", out)
	}
	if !strings.Contains(out, "name") || !strings.Contains(out, "Alice") {
		t.Errorf("Format() missing name row:\n%s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("Format() must skip unexported fields")
	}
}

func TestTableFormatter_Format_Map(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, map[string]any{"engine": "badger"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), "engine") || !strings.Contains(buf.String(), "badger") {
		t.Errorf("Format() = %q", buf.String())
	}
}

func TestTableFormatter_Format_FallbackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if buf.String() != "42\n" {
		t.Errorf("Format() = %q, want JSON fallback", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123e6, time.UTC)
	var nilPtr *string
	var iface any = "boxed"

	tests := []struct {
		name string
		v    any
		want string
	}{
		{"string", "x", "x"},
		{"empty string", "", "-"},
		{"int", 7, "7"},
		{"uint", uint8(9), "9"},
		{"float", 1.5, "1.50"},
		{"bool", true, "true"},
		{"time", ts, "2024-03-01 12:30:45.123"},
		{"zero time", time.Time{}, "-"},
		{"uuid", id, id.String()},
		{"short list", []string{"a", "b"}, "a,b"},
		{"long list", []int{1, 2, 3, 4, 5}, "[5 items]"},
		{"empty list", []string{}, "-"},
		{"map", map[string]int{"a": 1}, "{1 keys}"},
		{"nil pointer", nilPtr, ""},
		{"interface", &iface, "boxed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.v)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.v, got, tt.want)
			}
		})
	}

	if got := formatValue(reflect.Value{}); got != "" {
		t.Errorf("formatValue(invalid) = %q, want empty", got)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Name":      "Name",
		"CreatedAt": "Created_At",
		"":          "",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
