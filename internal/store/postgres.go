package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/jackc/pgx/v5"
)

// Postgres keeps cluster sets in PostgreSQL.
type Postgres struct {
	conn *pgx.Conn
}

// NewPostgres connects and ensures the schema exists.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{conn: conn}, nil
}

// initSchema creates the tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS dice_sets (
			id TEXT PRIMARY KEY,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS clusters (
			dice_set_id TEXT NOT NULL REFERENCES dice_sets(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			position INT NOT NULL,
			pip_value INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (dice_set_id, id)
		);
		CREATE TABLE IF NOT EXISTS exemplars (
			dice_set_id TEXT NOT NULL,
			cluster_id TEXT NOT NULL,
			position INT NOT NULL,
			tile BYTEA NOT NULL,
			PRIMARY KEY (dice_set_id, cluster_id, position),
			FOREIGN KEY (dice_set_id, cluster_id) REFERENCES clusters(dice_set_id, id) ON DELETE CASCADE
		);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Postgres) Close(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close(ctx)
}

// Load returns the saved set, or nil when the dice set is unknown.
func (s *Postgres) Load(ctx context.Context, diceSetID string) (*types.ClusterSet, error) {
	if s == nil || s.conn == nil {
		return nil, ErrNotConfigured
	}
	var updated time.Time
	err := s.conn.QueryRow(ctx, "SELECT updated_at FROM dice_sets WHERE id = $1", diceSetID).Scan(&updated)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT id, pip_value, updated_at FROM clusters
		WHERE dice_set_id = $1 ORDER BY position
	`, diceSetID)
	if err != nil {
		return nil, err
	}
	clusters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Cluster, error) {
		var c types.Cluster
		err := row.Scan(&c.ID, &c.PipValue, &c.UpdatedAt)
		return c, err
	})
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(clusters))
	for i, c := range clusters {
		index[c.ID] = i
	}
	rows, err = s.conn.Query(ctx, `
		SELECT cluster_id, tile FROM exemplars
		WHERE dice_set_id = $1 ORDER BY cluster_id, position
	`, diceSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var clusterID string
		var tile []byte
		if err := rows.Scan(&clusterID, &tile); err != nil {
			return nil, err
		}
		if i, ok := index[clusterID]; ok {
			clusters[i].Exemplars = append(clusters[i].Exemplars, types.NormalizedFace(tile))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &types.ClusterSet{Clusters: clusters, UpdatedAt: updated}, nil
}

// Save replaces the stored set in one transaction. Exemplar tiles are bulk loaded with COPY.
func (s *Postgres) Save(ctx context.Context, diceSetID string, set types.ClusterSet) error {
	if s == nil || s.conn == nil {
		return ErrNotConfigured
	}
	if err := validateID(diceSetID); err != nil {
		return err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Cascades to clusters and exemplars.
	if _, err := tx.Exec(ctx, "DELETE FROM dice_sets WHERE id = $1", diceSetID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "INSERT INTO dice_sets (id, updated_at) VALUES ($1, $2)", diceSetID, savedAt(set)); err != nil {
		return err
	}

	var tiles [][]any
	for i, c := range set.Clusters {
		_, err := tx.Exec(ctx, `
			INSERT INTO clusters (dice_set_id, id, position, pip_value, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, diceSetID, c.ID, i, c.PipValue, c.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert cluster %s: %w", c.ID, err)
		}
		for j, e := range c.Exemplars {
			tiles = append(tiles, []any{diceSetID, c.ID, j, []byte(e)})
		}
	}

	if len(tiles) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"exemplars"},
			[]string{"dice_set_id", "cluster_id", "position", "tile"},
			pgx.CopyFromRows(tiles),
		)
		if err != nil {
			return fmt.Errorf("copy exemplars: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes a dice set and everything under it. Unknown ids are not an error.
func (s *Postgres) Delete(ctx context.Context, diceSetID string) error {
	if s == nil || s.conn == nil {
		return ErrNotConfigured
	}
	_, err := s.conn.Exec(ctx, "DELETE FROM dice_sets WHERE id = $1", diceSetID)
	return err
}

// List summarizes every stored dice set, ordered by id.
func (s *Postgres) List(ctx context.Context) ([]Summary, error) {
	if s == nil || s.conn == nil {
		return nil, ErrNotConfigured
	}
	rows, err := s.conn.Query(ctx, `
		SELECT d.id, d.updated_at,
			(SELECT COUNT(*) FROM clusters c WHERE c.dice_set_id = d.id),
			(SELECT COUNT(*) FROM clusters c WHERE c.dice_set_id = d.id AND c.pip_value <> 0),
			(SELECT COUNT(*) FROM exemplars e WHERE e.dice_set_id = d.id)
		FROM dice_sets d
		ORDER BY d.id
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.DiceSetID, &sum.UpdatedAt, &sum.Clusters, &sum.Labeled, &sum.Exemplars)
		return sum, err
	})
}
