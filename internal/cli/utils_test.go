package cli

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/postlsh/internal/lsh"
)

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"text", "json"} {
		if got, err := ParseOutputFormat(s); err != nil || string(got) != s {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteQueryResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, []uint32{1}, []uint32{2, 9}, OutputJSON); err != nil {
		t.Fatalf("WriteQueryResults(json): %v", err)
	}
	var decoded []uint32
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded, []uint32{2, 9}) {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteQueryResults_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, []uint32{1}, []uint32{}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty results = %s, want []", got)
	}
}

func TestWriteQueryResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteQueryResults(&buf, []uint32{1, 4}, []uint32{2, 9}, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"2 similar posts for 1,4", "1. post:2", "2. post:9"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStats(t *testing.T) {
	s := lsh.Stats{Vectors: 3, Tables: 8, Projections: 4, Dim: 3, Seed: 31, Buckets: 11}
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteStats(&buf, s, OutputText); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"vectors:      3", "buckets:      11", "seed:         31"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteStats(&buf, s, OutputJSON); err != nil {
			t.Fatal(err)
		}
		var got lsh.Stats
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("decoded %+v, want %+v", got, s)
		}
	})
}

func TestJoinIDs(t *testing.T) {
	if got := JoinIDs([]uint32{3, 1, 4294967295}); got != "3,1,4294967295" {
		t.Errorf("JoinIDs = %q", got)
	}
	if got := JoinIDs(nil); got != "" {
		t.Errorf("JoinIDs(nil) = %q", got)
	}
}
