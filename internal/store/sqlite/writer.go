package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chessvariants-server/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/gameserver.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching. It
// is the durable archive behind the Session Store's Redis-backed working
// set: Redis holds live sessions with a TTL, SQLite holds every finished
// game and tournament record forever (spec.md §4.S).
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer pool: WAL mode allows concurrent readers, but this
	// process is the only writer, so one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS finished_games (
			session_id    TEXT    PRIMARY KEY,
			variant       TEXT    NOT NULL,
			subvariant    TEXT,
			white_user_id TEXT    NOT NULL,
			black_user_id TEXT    NOT NULL,
			result        TEXT    NOT NULL,
			winner        TEXT,
			move_count    INTEGER NOT NULL,
			tournament_id TEXT,
			created_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			data          TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_finished_games_players
			ON finished_games (white_user_id, black_user_id);
		CREATE INDEX IF NOT EXISTS idx_finished_games_tournament
			ON finished_games (tournament_id);

		CREATE TABLE IF NOT EXISTS tournaments (
			tournament_id TEXT    PRIMARY KEY,
			variant       TEXT    NOT NULL,
			subvariant    TEXT,
			status        TEXT    NOT NULL,
			created_at    INTEGER NOT NULL,
			finished_at   INTEGER,
			data          TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tournament_matches (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			tournament_id TEXT    NOT NULL,
			session_id    TEXT    NOT NULL,
			round         INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tournament_matches_tournament
			ON tournament_matches (tournament_id);
	`)
	return err
}

// ArchiveSession reads finished sessions from sessionCh and inserts them in
// batched transactions, flushing every batchSize sessions OR every
// flushDelay, whichever comes first. Blocks until ctx is cancelled or
// sessionCh is closed.
func (w *Writer) ArchiveSession(ctx context.Context, sessionCh <-chan *model.Session) {
	batch := make([]*model.Session, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] finished-game batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] archived %d finished games in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case s, ok := <-sessionCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, s)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// ArchiveSessionNow inserts one finished session immediately, bypassing the
// batching channel. The Session Store's Commit falls back to it when the
// archive channel is full.
func (w *Writer) ArchiveSessionNow(s *model.Session) error {
	return w.insertBatch([]*model.Session{s})
}

func (w *Writer) insertBatch(sessions []*model.Session) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO finished_games
			(session_id, variant, subvariant, white_user_id, black_user_id,
			 result, winner, move_count, tournament_id, created_at, finished_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range sessions {
		data, err := json.Marshal(s)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal session %s: %w", s.ID, err)
		}

		var result, winner string
		if s.Result != nil {
			result = string(s.Result.Result)
			winner = string(s.Result.Winner)
		}

		_, err = stmt.Exec(
			s.ID, string(s.Variant), string(s.Subvariant),
			s.Players.White.UserID, s.Players.Black.UserID,
			result, winner, len(s.MoveHistory), nullIfEmpty(s.TournamentID),
			s.CreatedAt, s.LastActivity, string(data),
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// SaveTournament upserts a tournament record.
func (w *Writer) SaveTournament(id string, variant model.Variant, subvariant model.Subvariant, status string, createdAt int64, finishedAt *int64, data []byte) error {
	var finishedAtVal interface{}
	if finishedAt != nil {
		finishedAtVal = *finishedAt
	}
	_, err := w.db.Exec(`
		INSERT OR REPLACE INTO tournaments (tournament_id, variant, subvariant, status, created_at, finished_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, string(variant), string(subvariant), status, createdAt, finishedAtVal, string(data))
	return err
}

// RecordTournamentMatch appends a tournament match record (spec.md §4.T:
// "if tournament-origin, append a match record").
func (w *Writer) RecordTournamentMatch(tournamentID, sessionID string, round int, createdAt int64) error {
	_, err := w.db.Exec(`
		INSERT INTO tournament_matches (tournament_id, session_id, round, created_at)
		VALUES (?, ?, ?, ?)
	`, tournamentID, sessionID, round, createdAt)
	return err
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
