package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
	"go.etcd.io/bbolt"
)

const diceSetBucket = "dice_sets"

// Bolt keeps each cluster set as one JSON document in a bbolt file.
type Bolt struct {
	db *bbolt.DB
}

type clusterRecord struct {
	ID        string    `json:"id"`
	PipValue  int       `json:"pip_value"`
	Exemplars [][]byte  `json:"exemplars"`
	UpdatedAt time.Time `json:"updated_at"`
}

type setRecord struct {
	Clusters  []clusterRecord `json:"clusters"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OpenBolt opens a bbolt-backed store at path.
func OpenBolt(path string) (*Bolt, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	s := &Bolt{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Bolt) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns the saved set, or nil when the dice set is unknown.
func (s *Bolt) Load(ctx context.Context, diceSetID string) (*types.ClusterSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	var rec *setRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(diceSetBucket))
		if bucket == nil {
			return fmt.Errorf("dice set bucket is missing")
		}
		payload := bucket.Get([]byte(diceSetID))
		if payload == nil {
			return nil
		}
		rec = &setRecord{}
		if err := json.Unmarshal(payload, rec); err != nil {
			return fmt.Errorf("unmarshal dice set: %w", err)
		}
		return nil
	})
	if err != nil || rec == nil {
		return nil, err
	}

	set := &types.ClusterSet{UpdatedAt: rec.UpdatedAt}
	for _, c := range rec.Clusters {
		exemplars := make([]types.NormalizedFace, len(c.Exemplars))
		for i, e := range c.Exemplars {
			exemplars[i] = types.NormalizedFace(e)
		}
		set.Clusters = append(set.Clusters, types.Cluster{
			ID:        c.ID,
			PipValue:  c.PipValue,
			Exemplars: exemplars,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return set, nil
}

// Save replaces the stored set.
func (s *Bolt) Save(ctx context.Context, diceSetID string, set types.ClusterSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	if err := validateID(diceSetID); err != nil {
		return err
	}

	rec := setRecord{UpdatedAt: savedAt(set)}
	for _, c := range set.Clusters {
		exemplars := make([][]byte, len(c.Exemplars))
		for i, e := range c.Exemplars {
			exemplars[i] = []byte(e)
		}
		rec.Clusters = append(rec.Clusters, clusterRecord{
			ID:        c.ID,
			PipValue:  c.PipValue,
			Exemplars: exemplars,
			UpdatedAt: c.UpdatedAt.UTC(),
		})
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dice set: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(diceSetBucket))
		if bucket == nil {
			return fmt.Errorf("dice set bucket is missing")
		}
		return bucket.Put([]byte(diceSetID), payload)
	})
}

// Delete removes a dice set. Unknown ids are not an error.
func (s *Bolt) Delete(ctx context.Context, diceSetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(diceSetBucket))
		if bucket == nil {
			return fmt.Errorf("dice set bucket is missing")
		}
		return bucket.Delete([]byte(diceSetID))
	})
}

// List summarizes every stored dice set, ordered by id.
func (s *Bolt) List(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	var out []Summary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(diceSetBucket))
		if bucket == nil {
			return fmt.Errorf("dice set bucket is missing")
		}
		// Keys iterate in byte order.
		return bucket.ForEach(func(k, v []byte) error {
			var rec setRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal dice set %s: %w", k, err)
			}
			sum := Summary{DiceSetID: string(k), Clusters: len(rec.Clusters), UpdatedAt: rec.UpdatedAt}
			for _, c := range rec.Clusters {
				if c.PipValue != 0 {
					sum.Labeled++
				}
				sum.Exemplars += len(c.Exemplars)
			}
			out = append(out, sum)
			return nil
		})
	})
	return out, err
}

func (s *Bolt) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(diceSetBucket)); err != nil {
			return fmt.Errorf("create dice set bucket: %w", err)
		}
		return nil
	})
}
