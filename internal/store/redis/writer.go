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

const defaultSessionTTL = 24 * time.Hour

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// SessionTTL is the Redis expiry refreshed on every commit (config.Config's
	// SessionTTLSeconds). Zero uses defaultSessionTTL.
	SessionTTL time.Duration
}

// Writer commits session state to Redis and maintains the matchmaking
// queues. A session commit is one atomic pipeline: the session blob, its
// TTL refresh, and the pub/sub fanout the Gateway subscribes to all go out
// together so a subscriber never observes a published move before the
// state it describes is readable by a concurrent Load.
type Writer struct {
	client     *goredis.Client
	sessionTTL time.Duration
}

// Client returns the underlying Redis client for health checks and for
// wiring into BufferedWriter/CircuitBreaker.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client, sessionTTL: ttl}, nil
}

func sessionKey(id string) string { return "session:" + id }
func sessionChannel(id string) string { return "pub:session:" + id }

// CommitSession writes the session's latest state and publishes it to
// subscribers in one pipelined round trip (spec.md §4.S: "every accepted
// action is committed to the Session Store before any client is told it
// succeeded").
func (w *Writer) CommitSession(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", s.ID, err)
	}

	pipe := w.client.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, w.sessionTTL)
	pipe.Publish(ctx, sessionChannel(s.ID), data)
	if s.Status == model.StatusFinished {
		pipe.ZRem(ctx, activeSessionsKey, s.ID)
	} else {
		pipe.ZAdd(ctx, activeSessionsKey, &goredis.Z{Score: float64(s.LastActivity), Member: s.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("commit session %s: %w", s.ID, err)
	}
	return nil
}

// CreateSession is CommitSession's counterpart for brand-new sessions; kept
// as a distinct name at call sites even though the Redis operation is
// identical, since callers (the Matchmaker, the Tournament Manager) reason
// about "creating" vs "committing an update" differently.
func (w *Writer) CreateSession(ctx context.Context, s *model.Session) error {
	return w.CommitSession(ctx, s)
}

const activeSessionsKey = "sessions:active"

// matchmakingQueueKey names the sorted set backing one variant/subvariant's
// matchmaking queue, scored by enqueue timestamp so ZRANGE yields FIFO
// order within a rating band the Matchmaker filters client-side.
func matchmakingQueueKey(variant model.Variant, subvariant model.Subvariant) string {
	return "mm:queue:" + string(variant) + ":" + string(subvariant)
}

// EnqueueWaiter adds a waiting player to the matchmaking queue for
// (variant, subvariant), replacing any existing entry for the same user.
func (w *Writer) EnqueueWaiter(ctx context.Context, variant model.Variant, subvariant model.Subvariant, entry model.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal queue entry: %w", err)
	}
	key := matchmakingQueueKey(variant, subvariant)

	// A user may already be queued (e.g. re-submitting after a disconnect);
	// drop any stale entry for them first so ZADD can't leave duplicates.
	if err := w.RemoveWaiter(ctx, variant, subvariant, entry.UserID); err != nil {
		return err
	}
	if err := w.client.ZAdd(ctx, key, &goredis.Z{Score: float64(entry.JoinedAt), Member: data}).Err(); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

// RemoveWaiter removes a user's queue entry, e.g. on disconnect or once
// matched. Scans the queue (bounded by queue size, which is small relative
// to a chess server's concurrency) and rewrites it without the match.
func (w *Writer) RemoveWaiter(ctx context.Context, variant model.Variant, subvariant model.Subvariant, userID string) error {
	key := matchmakingQueueKey(variant, subvariant)
	members, err := w.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("zrange %s: %w", key, err)
	}
	for _, raw := range members {
		var entry model.QueueEntry
		if json.Unmarshal([]byte(raw), &entry) == nil && entry.UserID == userID {
			if err := w.client.ZRem(ctx, key, raw).Err(); err != nil {
				return fmt.Errorf("zrem %s: %w", key, err)
			}
		}
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
