package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chessvariants-server/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads session state and matchmaking queues back out of Redis.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// LoadSession returns the latest committed state for sessionID, or nil
// (with a nil error) if no such session exists — e.g. it was never
// created, or it expired out of the TTL window after archival.
func (r *Reader) LoadSession(ctx context.Context, sessionID string) (*model.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", sessionKey(sessionID), err)
	}

	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return &s, nil
}

// ActiveSessionIDs returns every session id currently tracked as active.
// It is exposed through the Session Store; no other component calls it.
func (r *Reader) ActiveSessionIDs(ctx context.Context) ([]string, error) {
	ids, err := r.client.ZRange(ctx, activeSessionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", activeSessionsKey, err)
	}
	return ids, nil
}

// ListQueue returns every waiter currently queued for (variant, subvariant)
// in join order, oldest first.
func (r *Reader) ListQueue(ctx context.Context, variant model.Variant, subvariant model.Subvariant) ([]model.QueueEntry, error) {
	key := matchmakingQueueKey(variant, subvariant)
	raw, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", key, err)
	}

	entries := make([]model.QueueEntry, 0, len(raw))
	for _, member := range raw {
		var entry model.QueueEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			log.Printf("[redis-reader] skipping malformed queue entry in %s: %v", key, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
