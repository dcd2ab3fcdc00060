package model

// PieceType is a lowercase FEN-style piece letter, per spec.md §6
// ("all piece types are lowercase letters {p,r,n,b,q,k}").
type PieceType string

const (
	Pawn   PieceType = "p"
	Rook   PieceType = "r"
	Knight PieceType = "n"
	Bishop PieceType = "b"
	Queen  PieceType = "q"
	King   PieceType = "k"
)

// PointValue returns the 6PT capture point value for the piece type
// (P=1, N=B=3, R=5, Q=9, per spec.md §1/§4.E.4). King has no value; it is
// never captured.
func (p PieceType) PointValue() int {
	switch p {
	case Pawn:
		return 1
	case Knight, Bishop:
		return 3
	case Rook:
		return 5
	case Queen:
		return 9
	default:
		return 0
	}
}

// IsMajor reports whether the piece type is one of the Decay variant's
// "major piece" family (R/N/B), per spec.md §1/§4.E.5.
func (p PieceType) IsMajor() bool {
	return p == Rook || p == Knight || p == Bishop
}

// PocketPiece is a captured piece held in a color's Crazyhouse pocket,
// per spec.md §3. Dropped pawns carry no history: a promoted pawn that is
// captured returns to the pocket as a plain pawn.
type PocketPiece struct {
	ID         string `json:"id"`
	Type       PieceType `json:"type"`
	CapturedAt int64  `json:"capturedAt"`

	// TimerPaused/RemainingTime apply only under Crazyhouse withTimer, and
	// only to a piece that belonged to the player not on move at the last
	// turn change (spec.md §3, §9 "paused piece-embedded remainingTime").
	TimerPaused   bool  `json:"timerPaused,omitempty"`
	RemainingTime int64 `json:"remainingTime,omitempty"`
}

// Pocket holds one color's reserve of captured pieces. Standard Crazyhouse
// treats it as a multiset (spec.md §9 Open Question (a)); withTimer treats
// it as a strictly ordered sequence where only the head is droppable. Both
// representations are modeled as an ordered slice — multiset semantics for
// standard drop are implemented by allowing any element, not just index 0,
// to be dropped.
type Pocket []PocketPiece

// IndexOfType returns the index of the first piece of the given type, or
// -1 if none is present. Used by Crazyhouse Standard's multiset drop.
func (p Pocket) IndexOfType(t PieceType) int {
	for i, pc := range p {
		if pc.Type == t {
			return i
		}
	}
	return -1
}

// RemoveAt returns a copy of the pocket with the element at idx removed.
func (p Pocket) RemoveAt(idx int) Pocket {
	out := make(Pocket, 0, len(p)-1)
	out = append(out, p[:idx]...)
	out = append(out, p[idx+1:]...)
	return out
}

// PocketsByColor pairs each color's pocket, as carried in session state.
type PocketsByColor struct {
	White Pocket `json:"white"`
	Black Pocket `json:"black"`
}

// Get returns the pocket for a color.
func (p *PocketsByColor) Get(c Color) Pocket {
	if c == White {
		return p.White
	}
	return p.Black
}

// Set replaces the pocket for a color.
func (p *PocketsByColor) Set(c Color, pocket Pocket) {
	if c == White {
		p.White = pocket
	} else {
		p.Black = pocket
	}
}

// DropTimers maps pocket piece id -> expiration wall-clock ms, one map per
// color, as named in spec.md §3/§9 ("the per-piece drop-timer map is
// id -> expirationMs").
type DropTimers struct {
	White map[string]int64 `json:"white"`
	Black map[string]int64 `json:"black"`
}

// Get returns the timer map for a color, initializing it if nil.
func (d *DropTimers) Get(c Color) map[string]int64 {
	if c == White {
		if d.White == nil {
			d.White = map[string]int64{}
		}
		return d.White
	}
	if d.Black == nil {
		d.Black = map[string]int64{}
	}
	return d.Black
}

// FrozenPiecesByColor holds, per color, the set of frozen pocket pieces
// (Crazyhouse withTimer) identified by their piece id.
type FrozenPiecesByColor struct {
	White []PocketPiece `json:"white"`
	Black []PocketPiece `json:"black"`
}

func (f *FrozenPiecesByColor) Append(c Color, p PocketPiece) {
	if c == White {
		f.White = append(f.White, p)
	} else {
		f.Black = append(f.Black, p)
	}
}
