package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tazhate/remindbot/internal/domain"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

var remindersBucket = []byte("reminders")

// Bolt stores each reminder as a JSON value under its id. Save drops and
// recreates the bucket in one update transaction.
type Bolt struct {
	db *bbolt.DB
}

func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(remindersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (b *Bolt) Load() (Snapshot, error) {
	snap := make(Snapshot)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(remindersBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var r domain.Reminder
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			r.ID = string(k)
			snap[r.ID] = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (b *Bolt) Save(snap Snapshot) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(remindersBucket); err != nil && !errors.Is(err, berrors.ErrBucketNotFound) {
			return fmt.Errorf("drop bucket: %w", err)
		}
		bucket, err := tx.CreateBucket(remindersBucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		for id, r := range snap {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode %s: %w", id, err)
			}
			if err := bucket.Put([]byte(id), data); err != nil {
				return fmt.Errorf("put %s: %w", id, err)
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
