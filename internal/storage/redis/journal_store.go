package redis

import (
	"context"
	"time"

	"github.com/kidwatch/vigil/internal/storage"
	"github.com/redis/go-redis/v9"
)

type journalStore struct {
	client *redis.Client
}

func (s *journalStore) Append(ctx context.Context, event storage.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := marshalEvent(event)
	if err != nil {
		return err
	}

	key := event.Key()
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, keyJournal, redis.Z{
		Score:  float64(event.Timestamp.UnixNano()),
		Member: key,
	})
	pipe.HSet(ctx, keyJournalEvents, key, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	return s.trim(ctx)
}

// trim drops the oldest entries beyond the journal bound.
func (s *journalStore) trim(ctx context.Context) error {
	count, err := s.client.ZCard(ctx, keyJournal).Result()
	if err != nil {
		return err
	}
	excess := count - storage.MaxJournalEvents
	if excess <= 0 {
		return nil
	}

	oldest, err := s.client.ZRange(ctx, keyJournal, 0, excess-1).Result()
	if err != nil {
		return err
	}
	if len(oldest) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByRank(ctx, keyJournal, 0, excess-1)
	pipe.HDel(ctx, keyJournalEvents, oldest...)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *journalStore) Pending(ctx context.Context, limit int) ([]storage.Event, error) {
	keys, err := s.client.ZRange(ctx, keyJournal, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	var events []storage.Event
	for _, key := range keys {
		if limit > 0 && len(events) >= limit {
			break
		}
		data, err := s.client.HGet(ctx, keyJournalEvents, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		event, err := unmarshalEvent(data)
		if err != nil {
			continue
		}
		if !event.Synced {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *journalStore) MarkSynced(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		data, err := s.client.HGet(ctx, keyJournalEvents, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return err
		}
		event, err := unmarshalEvent(data)
		if err != nil {
			continue
		}
		event.Synced = true
		updated, err := marshalEvent(event)
		if err != nil {
			return err
		}
		if err := s.client.HSet(ctx, keyJournalEvents, key, updated).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *journalStore) Recent(ctx context.Context, n int) ([]storage.Event, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n) - 1
	}
	keys, err := s.client.ZRevRange(ctx, keyJournal, 0, stop).Result()
	if err != nil {
		return nil, err
	}

	events := make([]storage.Event, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.HGet(ctx, keyJournalEvents, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		event, err := unmarshalEvent(data)
		if err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}
