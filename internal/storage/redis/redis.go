// Package redis implements the storage interfaces on a Redis server, for
// installations that centralize several agents' local state on the home
// network.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kidwatch/vigil/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyJournal       = "vigil:journal"        // ZSET: event key scored by unix nano
	keyJournalEvents = "vigil:journal:events" // HASH: event key -> JSON
	keySettings      = "vigil:settings"       // HASH: setting key -> value
)

// Config holds the Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Store implements the storage.Store interface using Redis.
type Store struct {
	client *redis.Client
}

// Open creates a Redis-backed store and verifies the connection.
func Open(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Journal returns the journal store.
func (s *Store) Journal() storage.JournalStore { return &journalStore{client: s.client} }

// Settings returns the settings store.
func (s *Store) Settings() storage.SettingsStore { return &settingsStore{client: s.client} }

func marshalEvent(event storage.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalEvent(data string) (storage.Event, error) {
	var event storage.Event
	err := json.Unmarshal([]byte(data), &event)
	return event, err
}
