package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/kidwatch/vigil/internal/storage"
	"go.etcd.io/bbolt"
)

type journalStore struct {
	db *bbolt.DB
}

func (s *journalStore) Append(ctx context.Context, event storage.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := marshal(event)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketJournal))
		if bucket == nil {
			return fmt.Errorf("journal bucket missing")
		}
		if err := bucket.Put([]byte(event.Key()), data); err != nil {
			return err
		}
		return trim(bucket)
	})
}

// trim drops the oldest entries beyond the journal bound. Keys sort by
// RFC3339 timestamp, so bolt's byte order is chronological.
func trim(bucket *bbolt.Bucket) error {
	count := 0
	c := bucket.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}

	excess := count - storage.MaxJournalEvents
	if excess <= 0 {
		return nil
	}
	for k, _ := c.First(); k != nil && excess > 0; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
		excess--
	}
	return nil
}

func (s *journalStore) Pending(ctx context.Context, limit int) ([]storage.Event, error) {
	var events []storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketJournal))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(events) >= limit {
				break
			}
			var event storage.Event
			if err := unmarshal(v, &event); err != nil {
				// A corrupt entry is skipped, not fatal.
				continue
			}
			if !event.Synced {
				events = append(events, event)
			}
		}
		return nil
	})
	return events, err
}

func (s *journalStore) MarkSynced(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketJournal))
		if bucket == nil {
			return fmt.Errorf("journal bucket missing")
		}
		for _, key := range keys {
			data := bucket.Get([]byte(key))
			if data == nil {
				continue
			}
			var event storage.Event
			if err := unmarshal(data, &event); err != nil {
				continue
			}
			event.Synced = true
			updated, err := marshal(event)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), updated); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *journalStore) Recent(ctx context.Context, n int) ([]storage.Event, error) {
	var events []storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		bucket := tx.Bucket([]byte(bucketJournal))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(events) >= n {
				break
			}
			var event storage.Event
			if err := unmarshal(v, &event); err != nil {
				continue
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}
