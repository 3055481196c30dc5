// Package filestore implements a file-backed model.Store (SPEC_FULL.md
// §4.14): a gob-encoded binary record stream for round-tripping, plus a
// human-readable text dump for inspection.
package filestore

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"sensei/internal/engineerr"
	"sensei/internal/model"
)

// Store persists model.FeatureRecords to a file at Path. Save always
// truncates and rewrites the whole file; Load reads it back in full.
type Store struct {
	Path string
}

// New returns a Store writing to and reading from path.
func New(path string) *Store {
	return &Store{Path: path}
}

var _ model.Store = (*Store)(nil)

// Save gob-encodes records as a self-delimited stream: one gob.Encoder
// writing successive values, which gob.Decoder reads back with repeated
// Decode calls until io.EOF.
func (s *Store) Save(ctx context.Context, records []model.FeatureRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return engineerr.Wrap(engineerr.Data, "filestore.Save", "creating file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := gob.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return engineerr.Wrap(engineerr.Data, "filestore.Save", "encoding record", err)
		}
	}
	if err := w.Flush(); err != nil {
		return engineerr.Wrap(engineerr.Data, "filestore.Save", "flushing file", err)
	}
	return nil
}

// Load decodes every record previously written by Save.
func (s *Store) Load(ctx context.Context) ([]model.FeatureRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Data, "filestore.Load", "opening file", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(bufio.NewReader(f))
	var records []model.FeatureRecord
	for {
		var rec model.FeatureRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, engineerr.Wrap(engineerr.Data, "filestore.Load", "decoding record", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteText writes records to path as "weight\tfeature1*feature2...\n"
// lines, sorted by descending absolute weight, for human inspection
// (SPEC_FULL.md §4.14's "text dump" option). It is not read back by Load.
func WriteText(path string, records []model.FeatureRecord) error {
	sorted := make([]model.FeatureRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return absFloat(sorted[i].Weight) > absFloat(sorted[j].Weight)
	})

	f, err := os.Create(path)
	if err != nil {
		return engineerr.Wrap(engineerr.Data, "filestore.WriteText", "creating file", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range sorted {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", strconv.FormatFloat(rec.Weight, 'g', -1, 64), strings.Join(rec.Features, "*")); err != nil {
			return engineerr.Wrap(engineerr.Data, "filestore.WriteText", "writing line", err)
		}
	}
	return w.Flush()
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
