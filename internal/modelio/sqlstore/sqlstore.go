// Package sqlstore implements a MySQL-backed model.Store (SPEC_FULL.md
// §4.14), grounded on the teacher's internal/apply.Applier connection
// handling (sql.Open("mysql", dsn), PingContext on connect).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"sensei/internal/engineerr"
	"sensei/internal/model"
)

// Store persists model.FeatureRecords to a `model_weights` table keyed
// by (model_id, feature_key), where feature_key is the product feature's
// names joined with "*".
type Store struct {
	db      *sqlx.DB
	modelID string
}

// Open connects to dsn via the go-sql-driver/mysql driver and pings it,
// mirroring the teacher's Applier.Connect.
func Open(ctx context.Context, dsn, modelID string) (*Store, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Configuration, "sqlstore.Open", "opening database connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, engineerr.Wrap(engineerr.Data, "sqlstore.Open", fmt.Sprintf("ping failed (%v); additionally failed to close", err), closeErr)
		}
		return nil, engineerr.Wrap(engineerr.Data, "sqlstore.Open", "pinging database", err)
	}
	return &Store{db: db, modelID: modelID}, nil
}

var _ model.Store = (*Store)(nil)

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTableIfNotExists creates the model_weights table, for callers
// that manage schema outside of a migration tool.
func (s *Store) CreateTableIfNotExists(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS model_weights (
		model_id TEXT NOT NULL,
		feature_key TEXT NOT NULL,
		weight DOUBLE NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return engineerr.Wrap(engineerr.Data, "sqlstore.CreateTableIfNotExists", "creating table", err)
	}
	return nil
}

type weightRow struct {
	FeatureKey string  `db:"feature_key"`
	Weight     float64 `db:"weight"`
}

// Save replaces every row for s.modelID with records, inside a single
// transaction (delete-then-insert), matching the teacher's
// applyWithTransaction idiom of wrapping multiple statements in one
// sql.Tx.
func (s *Store) Save(ctx context.Context, records []model.FeatureRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return engineerr.Wrap(engineerr.Data, "sqlstore.Save", "beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM model_weights WHERE model_id = ?`, s.modelID); err != nil {
		return engineerr.Wrap(engineerr.Data, "sqlstore.Save", "clearing existing rows", err)
	}

	const insert = `INSERT INTO model_weights (model_id, feature_key, weight) VALUES (?, ?, ?)`
	for _, rec := range records {
		key := strings.Join(rec.Features, "*")
		if _, err := tx.ExecContext(ctx, insert, s.modelID, key, rec.Weight); err != nil {
			return engineerr.Wrap(engineerr.Data, "sqlstore.Save", "inserting row", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return engineerr.Wrap(engineerr.Data, "sqlstore.Save", "committing transaction", err)
	}
	return nil
}

// Load reads back every row for s.modelID.
func (s *Store) Load(ctx context.Context) ([]model.FeatureRecord, error) {
	var rows []weightRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT feature_key, weight FROM model_weights WHERE model_id = ?`, s.modelID)
	if err != nil && err != sql.ErrNoRows {
		return nil, engineerr.Wrap(engineerr.Data, "sqlstore.Load", "querying rows", err)
	}

	records := make([]model.FeatureRecord, len(rows))
	for i, r := range rows {
		var features []string
		if r.FeatureKey != "" {
			features = strings.Split(r.FeatureKey, "*")
		}
		records[i] = model.FeatureRecord{Features: features, Weight: r.Weight}
	}
	return records, nil
}
