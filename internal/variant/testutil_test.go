package variant

import "chessvariants-server/internal/model"

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func newSession(fen string, tc model.TimeControl) *model.Session {
	return &model.Session{
		ID:          "sess-1",
		FEN:         fen,
		ActiveColor: model.White,
		Clocks:      model.ClocksByColor{White: tc.BaseTimeMs, Black: tc.BaseTimeMs},
		TimeControl: tc,
		Status:      model.StatusActive,
	}
}
