package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kilupskalvis/mashix/internal/models"
	bolt "go.etcd.io/bbolt"
)

// SaveRun stores a run and marks it as the latest run.
func (s *Store) SaveRun(run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		if err := tx.Bucket(bucketRuns).Put([]byte(run.ID), data); err != nil {
			return fmt.Errorf("store run: %w", err)
		}
		return tx.Bucket(bucketKV).Put([]byte(keyLastRun), []byte(run.ID))
	})
}

// GetRun retrieves a run by ID. Returns (nil, nil) if not found.
func (s *Store) GetRun(id string) (*models.Run, error) {
	var run *models.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return nil
		}
		run = &models.Run{}
		return json.Unmarshal(data, run)
	})
	return run, err
}

// GetLastRun returns the most recently saved run, or (nil, nil) if there is none.
func (s *Store) GetLastRun() (*models.Run, error) {
	id, err := s.GetValue(keyLastRun)
	if err != nil || id == "" {
		return nil, err
	}
	return s.GetRun(id)
}

// ListRuns returns all runs, oldest first.
func (s *Store) ListRuns() ([]*models.Run, error) {
	var runs []*models.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var r models.Run
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal run: %w", err)
			}
			runs = append(runs, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}
