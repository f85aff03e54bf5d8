package investigation

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sentinela-br/sentinela/internal/models"
)

const checkpointBucket = "investigations"

// CheckpointStore snapshots investigation state to a local bbolt file at
// every state transition. It lets `status <id>` answer without a database
// round trip and preserves the last known phase if the process dies
// mid-investigation.
type CheckpointStore struct {
	db *bolt.DB
}

// OpenCheckpointStore opens (or creates) the checkpoint file
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(checkpointBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint bucket: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Close closes the underlying file
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

// Save writes the current snapshot for the investigation, overwriting any
// previous one.
func (s *CheckpointStore) Save(result *models.InvestigationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(checkpointBucket)).Put([]byte(result.InvestigationID), data)
	})
}

// Load reads the latest snapshot for an investigation id. A missing id
// returns (nil, nil).
func (s *CheckpointStore) Load(id string) (*models.InvestigationResult, error) {
	var result *models.InvestigationResult
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(checkpointBucket)).Get([]byte(id))
		if data == nil {
			return nil
		}
		result = &models.InvestigationResult{}
		return json.Unmarshal(data, result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	return result, nil
}
