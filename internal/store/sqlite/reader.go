package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"chessvariants-server/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the durable archive: finished games
// and tournament history.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// FinishedGame is the summary row surfaced for game history queries; the
// full archived session is in Data for clients that need the complete
// move history.
type FinishedGame struct {
	SessionID    string
	Variant      model.Variant
	Subvariant   model.Subvariant
	WhiteUserID  string
	BlackUserID  string
	Result       model.ResultType
	Winner       model.Color
	MoveCount    int
	TournamentID string
	CreatedAt    int64
	FinishedAt   int64
	Data         *model.Session
}

// GamesForUser returns a user's finished games, most recent first.
func (r *Reader) GamesForUser(userID string, limit int) ([]FinishedGame, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT session_id, variant, subvariant, white_user_id, black_user_id,
		       result, winner, move_count, tournament_id, created_at, finished_at, data
		FROM finished_games
		WHERE white_user_id = ? OR black_user_id = ?
		ORDER BY finished_at DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query finished_games: %w", err)
	}
	defer rows.Close()
	return scanFinishedGames(rows)
}

// GamesForTournament returns every finished game recorded under a
// tournament id, ordered by when they finished.
func (r *Reader) GamesForTournament(tournamentID string) ([]FinishedGame, error) {
	rows, err := r.db.Query(`
		SELECT session_id, variant, subvariant, white_user_id, black_user_id,
		       result, winner, move_count, tournament_id, created_at, finished_at, data
		FROM finished_games
		WHERE tournament_id = ?
		ORDER BY finished_at ASC
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query finished_games by tournament: %w", err)
	}
	defer rows.Close()
	return scanFinishedGames(rows)
}

func scanFinishedGames(rows *sql.Rows) ([]FinishedGame, error) {
	var games []FinishedGame
	for rows.Next() {
		var g FinishedGame
		var variant, subvariant, result, winner, tournamentID, data string
		if err := rows.Scan(&g.SessionID, &variant, &subvariant, &g.WhiteUserID, &g.BlackUserID,
			&result, &winner, &g.MoveCount, &tournamentID, &g.CreatedAt, &g.FinishedAt, &data); err != nil {
			return nil, fmt.Errorf("sqlite scan finished_games: %w", err)
		}
		g.Variant = model.Variant(variant)
		g.Subvariant = model.Subvariant(subvariant)
		g.Result = model.ResultType(result)
		g.Winner = model.Color(winner)
		g.TournamentID = tournamentID

		var session model.Session
		if err := json.Unmarshal([]byte(data), &session); err == nil {
			g.Data = &session
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
