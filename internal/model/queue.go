package model

// QueueEntry is one player waiting in a Matchmaker queue for a given
// (variant, subvariant), per spec.md §4.M. Stored as the sorted-set member
// in the Session Store so a crashed Matchmaker can rebuild its in-memory
// view from Redis on restart.
type QueueEntry struct {
	UserID      string     `json:"userId"`
	DisplayName string     `json:"displayName"`
	Rating      int        `json:"rating"`
	Variant     Variant    `json:"variant"`
	Subvariant  Subvariant `json:"subvariant"`
	JoinedAt    int64      `json:"joinedAt"`

	// TournamentID is set when this waiter originated from a tournament
	// queue being offered for cross-pool matching (spec.md §4.T).
	TournamentID string `json:"tournamentId,omitempty"`
}
