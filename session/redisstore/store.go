package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/tutorhub-session/session"
	"github.com/redis/go-redis/v9"
)

var _ session.Storage = (*Store)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to session.StorageKey, e.g. a device or profile id.
	Prefix string
	// TTL of the stored record. Zero keeps it until overwritten.
	TTL time.Duration
}

// Store keeps the session record as a JSON blob in Redis.
type Store struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewClient connects to a single Redis node and checks the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("no Redis address provided")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func New(client redis.UniversalClient, cfg Config) *Store {
	return &Store{
		client: client,
		key:    cfg.Prefix + session.StorageKey,
		ttl:    cfg.TTL,
	}
}

func (s *Store) Load(ctx context.Context) (*session.Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from redis: %w", err)
	}

	var r session.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &r, nil
}

func (s *Store) Save(ctx context.Context, record session.Record) error {
	if !record.IsAuthenticated && record.User == nil {
		if err := s.client.Del(ctx, s.key).Err(); err != nil {
			return fmt.Errorf("failed to delete session from redis: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}
