// Package dataset turns CSV manifests into batches for the SLU recipe.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Record is one utterance from a manifest.
type Record struct {
	ID         string
	Duration   float64
	Wav        string
	Semantics  string
	Transcript string
}

// LoadCSV reads a manifest with at least ID, duration, wav and semantics
// columns. Every "$name" placeholder in the wav column is replaced with
// replacements[name].
func LoadCSV(path string, replacements map[string]string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, replacements)
}

func ReadCSV(r io.Reader, replacements map[string]string) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("manifest header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range []string{"ID", "duration", "wav", "semantics"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("manifest: missing column %q", need)
		}
	}

	var out []Record
	seen := map[string]bool{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		dur, err := strconv.ParseFloat(row[col["duration"]], 64)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: duration: %w", line, err)
		}
		rec := Record{
			ID:        row[col["ID"]],
			Duration:  dur,
			Wav:       substitute(row[col["wav"]], replacements),
			Semantics: row[col["semantics"]],
		}
		if i, ok := col["transcript"]; ok {
			rec.Transcript = row[i]
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("manifest line %d: duplicate id %q", line, rec.ID)
		}
		seen[rec.ID] = true
		out = append(out, rec)
	}
	return out, nil
}

func substitute(s string, repl map[string]string) string {
	for k, v := range repl {
		s = strings.ReplaceAll(s, "$"+k, v)
	}
	return s
}
