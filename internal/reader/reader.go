// Package reader implements LIBSVM-style row ingestion (SPEC_FULL.md
// §4.13): one row per line, first token the label, remaining tokens
// feature_name:1.
package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"sensei/internal/engineerr"
	"sensei/internal/feature"
	"sensei/internal/shard"
)

// RawRow is one parsed line prior to J interning: feature names instead of
// J's, since the feature universe is not yet known to the reader.
type RawRow struct {
	Label       shard.Label
	RowID       uint32
	FeatureKeys []string
}

// Options configures parsing.
type Options struct {
	// RowIDFeatureName, if non-empty, names the feature whose presence
	// carries the row's 32-bit id instead of being interned as a feature.
	RowIDFeatureName string
	// BestEffort collects malformed-row errors into the returned report
	// instead of aborting on the first one.
	BestEffort bool
}

// Report accumulates per-line errors when Options.BestEffort is set.
type Report struct {
	LineErrors map[int]error
}

// ReadLIBSVM parses every line from r into RawRows.
func ReadLIBSVM(r io.Reader, opts Options) ([]RawRow, *Report, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var rows []RawRow
	var report *Report
	if opts.BestEffort {
		report = &Report{LineErrors: make(map[int]error)}
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseLine(line, opts)
		if err != nil {
			wrapped := engineerr.Wrap(engineerr.Data, "reader.ReadLIBSVM", fmt.Sprintf("line %d", lineNo), err)
			if opts.BestEffort {
				report.LineErrors[lineNo] = wrapped
				continue
			}
			return nil, nil, wrapped
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, engineerr.Wrap(engineerr.Data, "reader.ReadLIBSVM", "scanning input", err)
	}
	return rows, report, nil
}

func parseLine(line string, opts Options) (RawRow, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return RawRow{}, fmt.Errorf("empty row")
	}

	label, err := parseLabel(fields[0])
	if err != nil {
		return RawRow{}, err
	}

	row := RawRow{Label: label, RowID: shard.InvalidID}
	seenRowID := false
	for _, tok := range fields[1:] {
		name, value, ok := strings.Cut(tok, ":")
		if !ok {
			return RawRow{}, fmt.Errorf("feature token %q missing ':'", tok)
		}

		if opts.RowIDFeatureName != "" && name == opts.RowIDFeatureName {
			if seenRowID {
				return RawRow{}, fmt.Errorf("duplicate row-id feature %q", name)
			}
			id, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return RawRow{}, fmt.Errorf("row-id feature %q has non-numeric value %q", name, value)
			}
			row.RowID = uint32(id)
			seenRowID = true
			continue
		}

		if value != "1" {
			return RawRow{}, fmt.Errorf("feature %q has unsupported continuous value %q, only boolean features (value 1) are supported", name, value)
		}
		row.FeatureKeys = append(row.FeatureKeys, name)
	}
	return row, nil
}

func parseLabel(tok string) (shard.Label, error) {
	switch tok {
	case "+1", "1":
		return shard.Positive, nil
	case "-1":
		return shard.Negative, nil
	default:
		n, err := strconv.Atoi(tok)
		if err != nil || (n != 1 && n != -1) {
			return 0, fmt.Errorf("label %q must be -1 or +1", tok)
		}
		if n == 1 {
			return shard.Positive, nil
		}
		return shard.Negative, nil
	}
}

// Intern resolves every RawRow's feature names into J's via features,
// sorting the result (CSR rows must be sorted, duplicate-free).
func Intern(features *feature.Map, raw RawRow) (shard.Row, error) {
	js := make([]feature.J, 0, len(raw.FeatureKeys))
	seen := make(map[feature.J]bool, len(raw.FeatureKeys))
	for _, name := range raw.FeatureKeys {
		j, err := features.Intern(name)
		if err != nil {
			return shard.Row{}, engineerr.Wrap(engineerr.Overflow, "reader.Intern", "interning feature", err)
		}
		if !seen[j] {
			seen[j] = true
			js = append(js, j)
		}
	}
	sortJs(js)
	return shard.Row{Label: raw.Label, RowID: raw.RowID, Js: js}, nil
}

func sortJs(js []feature.J) {
	for i := 1; i < len(js); i++ {
		for k := i; k > 0 && js[k-1] > js[k]; k-- {
			js[k-1], js[k] = js[k], js[k-1]
		}
	}
}

// StreamChunks splits rawRows into chunks of chunkSize and runs fn over
// each chunk concurrently, bounded by a golang.org/x/sync/semaphore.Weighted
// acquired per chunk before its worker goroutine starts (SPEC_FULL.md
// §4.13's "weighted semaphore for I/O backpressure").
func StreamChunks(ctx context.Context, rawRows []RawRow, chunkSize, maxConcurrent int, fn func(chunk []RawRow) error) error {
	if chunkSize <= 0 {
		chunkSize = len(rawRows)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(rawRows); start += chunkSize {
		end := min(start+chunkSize, len(rawRows))
		chunk := rawRows[start:end]

		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(c []RawRow) {
			defer wg.Done()
			defer sem.Release(1)
			if err := fn(c); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(chunk)
	}
	wg.Wait()
	return firstErr
}
