package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbendtzen/game-show-backend/internal/errs"
	"github.com/mbendtzen/game-show-backend/internal/model"
	"github.com/mbendtzen/game-show-backend/internal/store"
)

const keyPrefix = "gameshow"

// Store is the Redis-backed game document store. One JSON document per game
// code, expired by Redis TTL matching the document's own expiresAt.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.Store = (*Store)(nil)

// New connects to Redis at the given URL and verifies the connection.
func New(url string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client (for testing).
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Save writes the document under its game code with the configured TTL.
func (s *Store) Save(ctx context.Context, doc *model.GameDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, gameKey(doc.GameCode), data, s.ttl).Err()
}

// Load reads the document for a code.
func (s *Store) Load(ctx context.Context, code string) (*model.GameDocument, error) {
	data, err := s.client.Get(ctx, gameKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errs.ErrGameNotFound
		}
		return nil, err
	}
	var doc model.GameDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// gameKey returns the Redis key for a game document.
func gameKey(code string) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, code)
}
