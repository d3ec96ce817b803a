// Package cli provides output helpers for the postlsh command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/postlsh/internal/lsh"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteQueryResults writes similar post-ids to w in the given format.
func WriteQueryResults(w io.Writer, query, results []uint32, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, results)
	}
	fmt.Fprintf(w, "%d similar posts for %s\n", len(results), JoinIDs(query))
	for i, id := range results {
		fmt.Fprintf(w, "%4d. post:%d\n", i+1, id)
	}
	return nil
}

// WriteStats writes index statistics to w in the given format.
func WriteStats(w io.Writer, s lsh.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "vectors:      %d   # stored embeddings\n", s.Vectors)
	fmt.Fprintf(w, "buckets:      %d   # non-empty buckets across all tables\n", s.Buckets)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# configuration")
	fmt.Fprintf(w, "tables:       %d\n", s.Tables)
	fmt.Fprintf(w, "projections:  %d\n", s.Projections)
	fmt.Fprintf(w, "dim:          %d\n", s.Dim)
	fmt.Fprintf(w, "seed:         %d\n", s.Seed)
	return nil
}

// JoinIDs renders post-ids as a comma-separated list.
func JoinIDs(ids []uint32) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
