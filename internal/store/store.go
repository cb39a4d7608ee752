// Package store persists calibrated cluster sets per dice set.
//
// Three backends share one contract: PostgreSQL (pgx), SQLite (modernc) and
// bbolt. Save replaces the whole set atomically and Load returns nil, nil when
// nothing has been saved for the id.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
)

// ErrNotConfigured is returned when a store method runs on a nil or closed store.
var ErrNotConfigured = errors.New("storage is not configured")

// ExemplarStore loads and saves cluster sets keyed by dice set id.
type ExemplarStore interface {
	Load(ctx context.Context, diceSetID string) (*types.ClusterSet, error)
	Save(ctx context.Context, diceSetID string, set types.ClusterSet) error
	Delete(ctx context.Context, diceSetID string) error
	List(ctx context.Context) ([]Summary, error)
	Close(ctx context.Context) error
}

// Summary describes one persisted dice set.
type Summary struct {
	DiceSetID string
	Clusters  int
	Labeled   int
	Exemplars int
	UpdatedAt time.Time
}

// Open selects a backend from the URL scheme: postgres:// or postgresql://,
// sqlite://<path> and bolt://<path>.
func Open(ctx context.Context, url string) (ExemplarStore, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return nil, fmt.Errorf("store url %q has no scheme", url)
	}
	var (
		s   ExemplarStore
		err error
	)
	switch scheme {
	case "postgres", "postgresql":
		s, err = NewPostgres(ctx, url)
	case "sqlite":
		s, err = OpenSQLite(rest)
	case "bolt":
		s, err = OpenBolt(rest)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", scheme)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func validateID(diceSetID string) error {
	if strings.TrimSpace(diceSetID) == "" {
		return fmt.Errorf("dice set id is required")
	}
	return nil
}

// savedAt returns the set's timestamp, or now when it was never stamped.
func savedAt(set types.ClusterSet) time.Time {
	if set.UpdatedAt.IsZero() {
		return time.Now().UTC()
	}
	return set.UpdatedAt.UTC()
}
