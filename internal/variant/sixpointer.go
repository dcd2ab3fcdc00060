package variant

import (
	"chessvariants-server/internal/model"
	"chessvariants-server/internal/position"
)

// SixPointerTimeControl: per-move clock of 30s, not cumulative (spec.md
// §4.E.4). BaseTimeMs doubles as the per-move budget so the Gateway's
// generic time-control payload shape still applies.
var SixPointerTimeControl = model.TimeControl{BaseTimeMs: model.SixPointerPerMoveMs, PerMoveMs: model.SixPointerPerMoveMs}

// SixPointerStartingFENs is the process-static candidate list of
// pre-vetted, legal, non-terminal balanced mid-game positions 6PT sessions
// start from (spec.md §9 "Randomized starting positions (6PT)"). A real
// deployment would curate dozens of these from master games; the set here
// is representative and each entry is a legal, non-terminal FEN.
var SixPointerStartingFENs = []string{
	"r1bqkb1r/pppp1ppp/2n2n2/4p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4",
	"r2qkbnr/ppp2ppp/2np4/1B2p3/4P3/3P1N2/PPP2PPP/RNBQK2R w KQkq - 0 5",
	"rnbq1rk1/ppp1bppp/4pn2/3p4/2PP4/2N1PN2/PP3PPP/R1BQKB1R w KQ - 2 6",
	"r1bqk2r/ppppbppp/2n2n2/4p3/2B1P3/2N2N2/PPPP1PPP/R1BQK2R w KQkq - 6 5",
}

// SixPointerEngine implements spec.md §4.E.4. Action = Move | TimeoutPenalty
// (no drops). It does not reuse runPreamble — its clock is a per-move
// budget that resets every turn rather than a cumulative main clock, and
// its expiry is a non-fatal penalty driven by an explicit client event
// rather than an engine-detected game-ending timeout.
type SixPointerEngine struct{}

func (SixPointerEngine) ValidateAndApply(state *model.Session, action model.Action, playerColor model.Color, nowMs int64) model.Outcome {
	if state.Status == model.StatusFinished {
		return model.Rejected(model.CodeInvalidState, "game has already ended")
	}
	if !playerColor.Valid() {
		return model.Rejected(model.CodeInvalidPlayer, "unrecognized color")
	}
	if state.ActiveColor != playerColor {
		return model.Rejected(model.CodeWrongTurn, "it is not your turn")
	}

	s := state.Clone()
	if s.SixPointer == nil {
		s.SixPointer = &model.SixPointerState{MaxMoves: model.SixPointerMaxMoves}
	}

	firstMove := !s.GameStarted
	if firstMove {
		s.GameStarted = true
		s.FirstMoveTimestamp = nowMs
		s.TurnStartTimestamp = nowMs
	}

	switch action.Kind {
	case model.ActionTimeoutPenalty:
		return e6ptApplyTimeoutPenalty(s, playerColor, nowMs)
	case model.ActionMove:
		return e6ptApplyMove(s, action, playerColor, nowMs)
	default:
		return model.Rejected(model.CodeInvalidInput, "6PT accepts only move or timeoutPenalty actions")
	}
}

func e6ptApplyMove(s *model.Session, action model.Action, mover model.Color, nowMs int64) model.Outcome {
	sp := s.SixPointer
	if sp.MovesPlayed.Get(mover) >= sp.MaxMoves+sp.BonusMoves.Get(mover) {
		return model.Rejected(model.CodeMoveLimitExceeded, "move cap reached")
	}

	applied, err := position.ApplyMove(s.FEN, action.From, action.To, action.Promotion)
	if err != nil {
		return model.Rejected(classifyMoveError(err), err.Error())
	}

	if applied.IsCapture {
		sp.Points.Add(mover, applied.Captured.PointValue())
		if sp.Points.Get(mover) < 0 {
			sp.Points.Set(mover, 0)
		}
		s.CapturedPieces.Append(mover, applied.Captured)
	}
	sp.MovesPlayed.Add(mover, 1)

	move := model.MoveRecord{
		Kind: model.MoveKindStandard, Color: mover,
		From: action.From, To: action.To, Promotion: action.Promotion,
		Captured: applied.Captured, SAN: applied.SAN, FEN: applied.FEN, Timestamp: nowMs,
	}
	s.FEN = applied.FEN
	s.ActiveColor = mover.Opposite()
	s.LastMoveTimestamp = nowMs
	s.TurnStartTimestamp = nowMs
	recordMove(s, move)

	if applied.IsCapture {
		sixPointerFinalMoveBonus(s, mover, action.To, nowMs)
	}

	result := evaluateSixPointerTerminal(s, mover, nowMs)
	terminal := finalizeIfTerminal(s, result)

	return model.Applied(s, &move, terminal)
}

func e6ptApplyTimeoutPenalty(s *model.Session, mover model.Color, nowMs int64) model.Outcome {
	sp := s.SixPointer
	elapsed := nowMs - s.TurnStartTimestamp
	if elapsed < model.SixPointerPerMoveMs {
		return model.Rejected(model.CodeInvalidState, "per-move clock has not expired")
	}
	if last := sp.LastTimeoutPenaltyAt.Get(mover); last != 0 && nowMs-last < model.SixPointerPenaltyDebounceMs {
		// Testable property 11: duplicate events within 5s cause only one
		// penalty application. No state change on the duplicate.
		return model.Rejected(model.CodeInvalidState, "duplicate timeout penalty")
	}

	sp.Points.Set(mover, max0(sp.Points.Get(mover)-1))
	sp.TimeoutPenalties.Add(mover, 1)
	sp.MovesPlayed.Add(mover, 1)
	sp.LastTimeoutPenaltyAt.Set(mover, nowMs)

	newFEN, err := position.PassTurn(s.FEN)
	if err != nil {
		return model.Rejected(model.CodeInternalError, err.Error())
	}
	s.FEN = newFEN

	move := model.MoveRecord{Kind: model.MoveKindTimeout, Color: mover, FEN: newFEN, Timestamp: nowMs}
	s.ActiveColor = mover.Opposite()
	s.Clocks.Set(model.White, model.SixPointerPerMoveMs)
	s.Clocks.Set(model.Black, model.SixPointerPerMoveMs)
	s.LastMoveTimestamp = nowMs
	s.TurnStartTimestamp = nowMs
	recordMove(s, move)

	result := evaluateSixPointerTerminal(s, mover, nowMs)
	terminal := finalizeIfTerminal(s, result)

	outcome := model.Warning(model.CodeTimeoutPenalty, "per-move clock expired; penalty applied", s)
	outcome.AppliedMove = &move
	outcome.IsTerminal = terminal
	return outcome
}

// sixPointerFinalMoveBonus implements spec.md §4.E.4's final-move recapture
// bonus: if the mover's move was their last allowed move, was a capture,
// and the opponent has no moves remaining but a legal recapture exists on
// the target square, the opponent is credited a bonus move and a foul
// incident is recorded.
func sixPointerFinalMoveBonus(s *model.Session, mover model.Color, targetSquare string, nowMs int64) {
	sp := s.SixPointer
	opponent := mover.Opposite()
	moverAtCap := sp.MovesPlayed.Get(mover) >= sp.MaxMoves+sp.BonusMoves.Get(mover)
	opponentExhausted := sp.MovesPlayed.Get(opponent) >= sp.MaxMoves+sp.BonusMoves.Get(opponent)
	if !moverAtCap || !opponentExhausted {
		return
	}
	moves, err := position.LegalMoves(s.FEN)
	if err != nil {
		return
	}
	for _, m := range moves {
		if m.To == targetSquare {
			sp.BonusMoves.Add(opponent, 1)
			sp.FoulIncidents = append(sp.FoulIncidents, model.FoulIncident{
				Type: model.FoulIncidentFinalMoveRecapture, By: mover, Timestamp: nowMs,
			})
			return
		}
	}
}

// evaluateSixPointerTerminal implements spec.md §4.E.4's termination
// ordering: checkmate ends immediately; stalemate/insufficient
// material/threefold repetition draw with points standing; otherwise, if
// both colors have reached their personal move cap, compare points.
func evaluateSixPointerTerminal(s *model.Session, mover model.Color, nowMs int64) *model.Result {
	status, err := position.Terminal(s.FEN)
	if err == nil {
		switch {
		case status.Checkmate:
			return &model.Result{Result: model.ResultCheckmate, Winner: mover, EndedAt: nowMs}
		case status.Stalemate:
			return &model.Result{Result: model.ResultStalemate, EndedAt: nowMs}
		case status.InsufficientMaterial:
			return &model.Result{Result: model.ResultInsufficientMaterial, EndedAt: nowMs}
		}
	}
	key := repetitionKey(s, s.FEN)
	if s.RepetitionMap[key] >= 3 {
		return &model.Result{Result: model.ResultRepetition, EndedAt: nowMs}
	}

	sp := s.SixPointer
	whiteCapped := sp.MovesPlayed.White >= sp.MaxMoves+sp.BonusMoves.White
	blackCapped := sp.MovesPlayed.Black >= sp.MaxMoves+sp.BonusMoves.Black
	if whiteCapped && blackCapped {
		switch {
		case sp.Points.White > sp.Points.Black:
			return &model.Result{Result: model.ResultPoints, Winner: model.White, EndedAt: nowMs}
		case sp.Points.Black > sp.Points.White:
			return &model.Result{Result: model.ResultPoints, Winner: model.Black, EndedAt: nowMs}
		default:
			return &model.Result{Result: model.ResultPoints, EndedAt: nowMs}
		}
	}
	return nil
}

func (SixPointerEngine) LegalActions(state *model.Session, playerColor model.Color, nowMs int64) []model.Action {
	if state.ActiveColor != playerColor || state.Status == model.StatusFinished {
		return nil
	}
	moves, err := position.LegalMoves(state.FEN)
	if err != nil {
		return nil
	}
	out := make([]model.Action, 0, len(moves)+1)
	for _, m := range moves {
		out = append(out, model.NewMoveAction(m.From, m.To, m.Promotion, nowMs))
	}
	if state.SixPointer != nil {
		elapsed := nowMs - state.TurnStartTimestamp
		if elapsed >= model.SixPointerPerMoveMs {
			out = append(out, model.NewTimeoutPenaltyAction(nowMs))
		}
	}
	return out
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
