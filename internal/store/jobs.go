package store

import (
	"encoding/json"
	"fmt"

	"github.com/kilupskalvis/mashix/internal/models"
	bolt "go.etcd.io/bbolt"
)

// jobKey builds the bbolt key for a job: zero-padded so keys sort by ordinal.
func jobKey(ordinal int) []byte {
	return []byte(fmt.Sprintf("%08d", ordinal))
}

// PutJob stores or replaces the record of a job.
func (s *Store) PutJob(rec *models.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Put(jobKey(rec.Ordinal), data)
	})
}

// GetJob retrieves a job by ordinal. Returns (nil, nil) if not found.
func (s *Store) GetJob(ordinal int) (*models.JobRecord, error) {
	var rec *models.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get(jobKey(ordinal))
		if data == nil {
			return nil
		}
		rec = &models.JobRecord{}
		return json.Unmarshal(data, rec)
	})
	return rec, err
}

// ListJobs returns every job record ordered by ordinal.
func (s *Store) ListJobs() ([]*models.JobRecord, error) {
	return s.listJobs(func(*models.JobRecord) bool { return true })
}

// ListJobsByStatus returns the job records with the given status ordered by ordinal.
func (s *Store) ListJobsByStatus(status models.JobStatus) ([]*models.JobRecord, error) {
	return s.listJobs(func(r *models.JobRecord) bool { return r.Status == status })
}

func (s *Store) listJobs(keep func(*models.JobRecord) bool) ([]*models.JobRecord, error) {
	var recs []*models.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var r models.JobRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal job %s: %w", k, err)
			}
			if keep(&r) {
				recs = append(recs, &r)
			}
			return nil
		})
	})
	return recs, err
}

// CountJobs returns the number of jobs per status.
func (s *Store) CountJobs() (map[models.JobStatus]int, error) {
	counts := make(map[models.JobStatus]int)
	recs, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		counts[r.Status]++
	}
	return counts, nil
}

// ClearJobs removes every job record.
func (s *Store) ClearJobs() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketJobs) != nil {
			if err := tx.DeleteBucket(bucketJobs); err != nil {
				return fmt.Errorf("delete jobs bucket: %w", err)
			}
		}
		_, err := tx.CreateBucket(bucketJobs)
		return err
	})
}
