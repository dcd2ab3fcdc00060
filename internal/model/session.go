package model

// TimeControl describes a variant's clock parameters. PerMoveMs is non-zero
// only for 6PT, where the clock is per-move rather than cumulative
// (spec.md §4.E.4).
type TimeControl struct {
	BaseTimeMs  int64 `json:"baseTime"`
	IncrementMs int64 `json:"increment"`
	PerMoveMs   int64 `json:"perMove,omitempty"`
}

// CapturedPiecesByColor records, per color, the pieces that color has
// captured from the opponent (spec.md §3: "capturedPieces {white:[],
// black:[]}"). Independent from Crazyhouse's Pocket, which additionally
// tracks droppability.
type CapturedPiecesByColor struct {
	White []PieceType `json:"white"`
	Black []PieceType `json:"black"`
}

func (c *CapturedPiecesByColor) Append(by Color, captured PieceType) {
	if by == White {
		c.White = append(c.White, captured)
	} else {
		c.Black = append(c.Black, captured)
	}
}

// ClocksByColor holds the two main clocks, in milliseconds.
type ClocksByColor struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

func (c *ClocksByColor) Get(color Color) int64 {
	if color == White {
		return c.White
	}
	return c.Black
}

func (c *ClocksByColor) Set(color Color, v int64) {
	if color == White {
		c.White = v
	} else {
		c.Black = v
	}
}

// Session is the full authoritative game record, per spec.md §3. It is
// created by the Matchmaker or Tournament Manager, lives entirely inside
// the Session Store, and is mutated only by the Dispatcher through one
// Variant Engine call at a time.
//
// The struct is JSON-trivial at rest: every field round-trips through
// encoding/json losslessly, satisfying spec.md §3's serialization
// invariant and testable property 15.
type Session struct {
	ID         string     `json:"sessionId"`
	Variant    Variant    `json:"variant"`
	Subvariant Subvariant `json:"subvariant,omitempty"`

	Players PlayersByColor `json:"players"`
	Status  Status         `json:"status"`

	FEN         string `json:"fen"`
	ActiveColor Color  `json:"activeColor"`

	MoveHistory     []MoveRecord     `json:"moveHistory"`
	PositionHistory []string         `json:"positionHistory"`
	RepetitionMap   map[string]int   `json:"repetitionMap"`

	Clocks      ClocksByColor `json:"clocks"`
	TimeControl TimeControl   `json:"timeControl"`

	TurnStartTimestamp int64 `json:"turnStartTimestamp"`
	LastMoveTimestamp  int64 `json:"lastMoveTimestamp"`
	GameStarted        bool  `json:"gameStarted"`
	FirstMoveTimestamp int64 `json:"firstMoveTimestamp,omitempty"`

	CapturedPieces CapturedPiecesByColor `json:"capturedPieces"`

	Result *Result `json:"result,omitempty"`

	// PendingDrawOffer holds the color that most recently sent offerDraw,
	// cleared on accept/decline or once any move is made. Draw offers are
	// a session-lifecycle concern, not a Variant Engine action.
	PendingDrawOffer Color `json:"pendingDrawOffer,omitempty"`

	// Variant sub-state. At most one is populated, selected by Variant
	// (classic sessions carry none).
	Crazyhouse  *CrazyhouseState  `json:"crazyhouse,omitempty"`
	Decay       *DecayState       `json:"decay,omitempty"`
	SixPointer  *SixPointerState  `json:"sixPointer,omitempty"`

	// TournamentID is set when the session was created via cross-pool
	// matching involving a tournament waiter (spec.md §4.T, §6 durable
	// record "if tournament-origin, append a match record").
	TournamentID string `json:"tournamentId,omitempty"`

	CreatedAt    int64 `json:"createdAt"`
	LastActivity int64 `json:"lastActivity"`
}

// CrazyhouseState is the Crazyhouse sub-state shared by both subvariants,
// per spec.md §3. DropTimers and FrozenPieces are populated only under
// withTimer; Standard leaves them zero-valued.
type CrazyhouseState struct {
	PocketedPieces PocketsByColor      `json:"pocketedPieces"`
	DropTimers     *DropTimers         `json:"dropTimers,omitempty"`
	FrozenPieces   *FrozenPiecesByColor `json:"frozenPieces,omitempty"`
}

// Clone returns a deep copy of the session, used by the Dispatcher/engines
// so that a Rejected outcome never aliases mutable sub-state back into the
// Session Store's last-committed value.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.MoveHistory = append([]MoveRecord(nil), s.MoveHistory...)
	out.PositionHistory = append([]string(nil), s.PositionHistory...)

	out.RepetitionMap = make(map[string]int, len(s.RepetitionMap))
	for k, v := range s.RepetitionMap {
		out.RepetitionMap[k] = v
	}

	out.CapturedPieces.White = append([]PieceType(nil), s.CapturedPieces.White...)
	out.CapturedPieces.Black = append([]PieceType(nil), s.CapturedPieces.Black...)

	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}

	if s.Crazyhouse != nil {
		cz := *s.Crazyhouse
		cz.PocketedPieces.White = append(Pocket(nil), s.Crazyhouse.PocketedPieces.White...)
		cz.PocketedPieces.Black = append(Pocket(nil), s.Crazyhouse.PocketedPieces.Black...)
		if s.Crazyhouse.DropTimers != nil {
			dt := DropTimers{
				White: cloneInt64Map(s.Crazyhouse.DropTimers.White),
				Black: cloneInt64Map(s.Crazyhouse.DropTimers.Black),
			}
			cz.DropTimers = &dt
		}
		if s.Crazyhouse.FrozenPieces != nil {
			fp := FrozenPiecesByColor{
				White: append([]PocketPiece(nil), s.Crazyhouse.FrozenPieces.White...),
				Black: append([]PocketPiece(nil), s.Crazyhouse.FrozenPieces.Black...),
			}
			cz.FrozenPieces = &fp
		}
		out.Crazyhouse = &cz
	}

	if s.Decay != nil {
		d := *s.Decay
		d.FrozenPieces.White = append([]string(nil), s.Decay.FrozenPieces.White...)
		d.FrozenPieces.Black = append([]string(nil), s.Decay.FrozenPieces.Black...)
		out.Decay = &d
	}

	if s.SixPointer != nil {
		sp := *s.SixPointer
		sp.FoulIncidents = append([]FoulIncident(nil), s.SixPointer.FoulIncidents...)
		out.SixPointer = &sp
	}

	return &out
}

func cloneInt64Map(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
