package bolt

import (
	"context"
	"fmt"

	"github.com/kidwatch/vigil/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketSettings))
		if bucket == nil {
			return storage.ErrNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return storage.ErrNotFound
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *settingsStore) Set(ctx context.Context, key, value string) error {
	return s.SetBatch(ctx, map[string]string{key: value})
}

func (s *settingsStore) SetBatch(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketSettings))
		if bucket == nil {
			return fmt.Errorf("settings bucket missing")
		}
		for key, value := range values {
			if err := bucket.Put([]byte(key), []byte(value)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *settingsStore) All(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketSettings))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			values[string(k)] = string(v)
			return nil
		})
	})
	return values, err
}
