package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dice_sets (
	id TEXT PRIMARY KEY,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS clusters (
	dice_set_id TEXT NOT NULL REFERENCES dice_sets(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	position INTEGER NOT NULL,
	pip_value INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (dice_set_id, id)
);
CREATE TABLE IF NOT EXISTS exemplars (
	dice_set_id TEXT NOT NULL,
	cluster_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	tile BLOB NOT NULL,
	PRIMARY KEY (dice_set_id, cluster_id, position),
	FOREIGN KEY (dice_set_id, cluster_id) REFERENCES clusters(dice_set_id, id) ON DELETE CASCADE
);
`

// SQLite keeps cluster sets in a local SQLite file.
type SQLite struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens (creating if needed) a SQLite store at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return &SQLite{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close(context.Context) error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Load returns the saved set, or nil when the dice set is unknown.
func (s *SQLite) Load(ctx context.Context, diceSetID string) (*types.ClusterSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, ErrNotConfigured
	}

	var updated int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT updated_at FROM dice_sets WHERE id = ?`, diceSetID).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dice set: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, pip_value, updated_at FROM clusters WHERE dice_set_id = ? ORDER BY position`, diceSetID)
	if err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}
	var clusters []types.Cluster
	index := map[string]int{}
	for rows.Next() {
		var c types.Cluster
		var ts int64
		if err := rows.Scan(&c.ID, &c.PipValue, &ts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		c.UpdatedAt = fromMillis(ts)
		index[c.ID] = len(clusters)
		clusters = append(clusters, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load clusters: %w", err)
	}

	rows, err = s.sqlDB.QueryContext(ctx,
		`SELECT cluster_id, tile FROM exemplars WHERE dice_set_id = ? ORDER BY cluster_id, position`, diceSetID)
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID string
		var tile []byte
		if err := rows.Scan(&clusterID, &tile); err != nil {
			return nil, fmt.Errorf("scan exemplar: %w", err)
		}
		if i, ok := index[clusterID]; ok {
			clusters[i].Exemplars = append(clusters[i].Exemplars, types.NormalizedFace(tile))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}

	return &types.ClusterSet{Clusters: clusters, UpdatedAt: fromMillis(updated)}, nil
}

// Save replaces the stored set in one transaction.
func (s *SQLite) Save(ctx context.Context, diceSetID string, set types.ClusterSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	if err := validateID(diceSetID); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dice_sets WHERE id = ?`, diceSetID); err != nil {
		return fmt.Errorf("clear dice set: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dice_sets (id, updated_at) VALUES (?, ?)`, diceSetID, toMillis(savedAt(set))); err != nil {
		return fmt.Errorf("insert dice set: %w", err)
	}

	clusterStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO clusters (dice_set_id, id, position, pip_value, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cluster insert: %w", err)
	}
	defer clusterStmt.Close()
	tileStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO exemplars (dice_set_id, cluster_id, position, tile) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare exemplar insert: %w", err)
	}
	defer tileStmt.Close()

	for i, c := range set.Clusters {
		if _, err := clusterStmt.ExecContext(ctx, diceSetID, c.ID, i, c.PipValue, toMillis(c.UpdatedAt)); err != nil {
			return fmt.Errorf("insert cluster %s: %w", c.ID, err)
		}
		for j, e := range c.Exemplars {
			if _, err := tileStmt.ExecContext(ctx, diceSetID, c.ID, j, []byte(e)); err != nil {
				return fmt.Errorf("insert exemplar %s/%d: %w", c.ID, j, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Delete removes a dice set and everything under it. Unknown ids are not an error.
func (s *SQLite) Delete(ctx context.Context, diceSetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM dice_sets WHERE id = ?`, diceSetID); err != nil {
		return fmt.Errorf("delete dice set: %w", err)
	}
	return nil
}

// List summarizes every stored dice set, ordered by id.
func (s *SQLite) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT d.id, d.updated_at,
			(SELECT COUNT(*) FROM clusters c WHERE c.dice_set_id = d.id),
			(SELECT COUNT(*) FROM clusters c WHERE c.dice_set_id = d.id AND c.pip_value <> 0),
			(SELECT COUNT(*) FROM exemplars e WHERE e.dice_set_id = d.id)
		FROM dice_sets d
		ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("list dice sets: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var ts int64
		if err := rows.Scan(&sum.DiceSetID, &ts, &sum.Clusters, &sum.Labeled, &sum.Exemplars); err != nil {
			return nil, fmt.Errorf("scan dice set: %w", err)
		}
		sum.UpdatedAt = fromMillis(ts)
		out = append(out, sum)
	}
	return out, rows.Err()
}
