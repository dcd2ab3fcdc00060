// Package session combines the Redis working set with the SQLite durable
// archive into the single Session Store the Dispatcher, Matchmaker, and
// Tournament Manager all depend on (spec.md §4.S). Redis holds every
// active session (TTL-bounded) and the matchmaking queues; SQLite holds
// every finished game and tournament record forever.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"chessvariants-server/internal/metrics"
	"chessvariants-server/internal/model"
	redisstore "chessvariants-server/internal/store/redis"
	sqlitestore "chessvariants-server/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Config bundles the dependencies a Store is built from.
type Config struct {
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	Metrics       *metrics.Metrics
	Logger        *slog.Logger

	// SessionTTLSeconds is the Redis expiry refreshed on every commit
	// (config.Config.SessionTTLSeconds). Zero uses the Redis writer's default.
	SessionTTLSeconds int
}

// Store implements dispatcher.Store plus the session-lifecycle and
// matchmaking-queue operations the Matchmaker and Tournament Manager need.
type Store struct {
	writer   *redisstore.Writer
	reader   *redisstore.Reader
	buffered *redisstore.BufferedWriter
	cb       *redisstore.CircuitBreaker

	sqlWriter *sqlitestore.Writer
	sqlReader *sqlitestore.Reader
	archiveCh chan *model.Session

	metrics *metrics.Metrics
	log     *slog.Logger
}

// New connects to Redis and SQLite and starts the background archiver.
func New(ctx context.Context, cfg Config) (*Store, error) {
	writer, err := redisstore.New(redisstore.WriterConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		SessionTTL: time.Duration(cfg.SessionTTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("session store: redis writer: %w", err)
	}
	reader, err := redisstore.NewReader(redisstore.ReaderConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("session store: redis reader: %w", err)
	}

	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("session store: sqlite writer: %w", err)
	}
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("sqlite reader init failed, continuing without history queries", slog.String("error", err.Error()))
		}
	}

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	if cfg.Metrics != nil {
		cb.OnStateChange = func(from, to redisstore.State) {
			cfg.Metrics.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				cfg.Metrics.RedisCircuitBreakerTrips.Inc()
			}
		}
	}
	buffered := redisstore.NewBufferedWriter(ctx, writer, cb, 10000)
	if cfg.Metrics != nil {
		buffered.OnBuffer = func() { cfg.Metrics.RedisBufferedWrites.Inc() }
	}

	s := &Store{
		writer:    writer,
		reader:    reader,
		buffered:  buffered,
		cb:        cb,
		sqlWriter: sqlWriter,
		sqlReader: sqlReader,
		archiveCh: make(chan *model.Session, 256),
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
	}
	go sqlWriter.ArchiveSession(ctx, s.archiveCh)
	return s, nil
}

// Load returns the latest committed state for sessionID, satisfying
// dispatcher.Store.
func (s *Store) Load(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.reader.LoadSession(ctx, sessionID)
}

// Commit writes the session back to Redis and, if this is the transition
// to finished, hands it off to the background SQLite archiver. Satisfies
// dispatcher.Store.
func (s *Store) Commit(ctx context.Context, session *model.Session) error {
	start := time.Now()
	err := s.buffered.CommitSession(session)
	if s.metrics != nil {
		s.metrics.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}

	if session.Status == model.StatusFinished {
		select {
		case s.archiveCh <- session:
		default:
			// Archive queue backed up; fall back to a synchronous write so a
			// finished game is never silently dropped from the durable record.
			if archErr := s.sqlWriter.ArchiveSessionNow(session); archErr != nil && s.log != nil {
				s.log.Error("synchronous game archive failed", slog.String("session_id", session.ID), slog.String("error", archErr.Error()))
			}
		}
	}
	return nil
}

// CreateSession assigns a fresh id and persists a brand-new session. Used
// by the Matchmaker and Tournament Manager, which generate ids outside any
// pure engine — engines never mint their own identifiers so their output
// stays deterministic.
func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	return s.writer.CreateSession(ctx, session)
}

// EnqueueWaiter adds a player to a matchmaking queue.
func (s *Store) EnqueueWaiter(ctx context.Context, entry model.QueueEntry) error {
	return s.writer.EnqueueWaiter(ctx, entry.Variant, entry.Subvariant, entry)
}

// RemoveWaiter removes a player from a matchmaking queue.
func (s *Store) RemoveWaiter(ctx context.Context, variant model.Variant, subvariant model.Subvariant, userID string) error {
	return s.writer.RemoveWaiter(ctx, variant, subvariant, userID)
}

// ListQueue returns the current waiters for a queue, oldest first.
func (s *Store) ListQueue(ctx context.Context, variant model.Variant, subvariant model.Subvariant) ([]model.QueueEntry, error) {
	return s.reader.ListQueue(ctx, variant, subvariant)
}

// ActiveSessionIDs returns every session id tracked as currently active.
func (s *Store) ActiveSessionIDs(ctx context.Context) ([]string, error) {
	return s.reader.ActiveSessionIDs(ctx)
}

// GamesForUser returns a user's finished-game history from the durable
// archive. Returns an empty slice if the SQLite reader failed to open.
func (s *Store) GamesForUser(userID string, limit int) ([]sqlitestore.FinishedGame, error) {
	if s.sqlReader == nil {
		return nil, nil
	}
	return s.sqlReader.GamesForUser(userID, limit)
}

// RecordTournamentMatch appends a durable tournament match record.
func (s *Store) RecordTournamentMatch(tournamentID, sessionID string, round int, createdAt int64) error {
	return s.sqlWriter.RecordTournamentMatch(tournamentID, sessionID, round, createdAt)
}

// SaveTournament upserts a tournament's durable record.
func (s *Store) SaveTournament(id string, createdAt int64, finishedAt *int64, data []byte) error {
	return s.sqlWriter.SaveTournament(id, "", "", statusFor(finishedAt), createdAt, finishedAt, data)
}

func statusFor(finishedAt *int64) string {
	if finishedAt != nil {
		return "finished"
	}
	return "active"
}

// RedisClient exposes the underlying Redis client, for health-check pings
// only — no other caller should reach past the Store's own methods.
func (s *Store) RedisClient() *goredis.Client {
	return s.writer.Client()
}

// SQLDB exposes the underlying SQLite handle, for health-check pings only.
func (s *Store) SQLDB() *sql.DB {
	return s.sqlWriter.DB()
}

// Close releases every underlying connection.
func (s *Store) Close() {
	close(s.archiveCh)
	s.writer.Close()
	s.reader.Close()
	s.sqlWriter.Close()
	if s.sqlReader != nil {
		s.sqlReader.Close()
	}
}
