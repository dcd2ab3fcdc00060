package model

// OutcomeKind tags the Outcome sum type named in spec.md §4.E:
// Outcome = {Applied(newState, appliedMove, terminalStatus?) |
//            Rejected(reason,code) | Warning(reason,code,newState)}.
type OutcomeKind string

const (
	OutcomeApplied  OutcomeKind = "applied"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeWarning  OutcomeKind = "warning"
)

// Outcome is what a Variant Engine returns from ValidateAndApply.
type Outcome struct {
	Kind OutcomeKind

	// Applied / Warning.
	NewState     *Session
	AppliedMove  *MoveRecord
	IsTerminal   bool

	// Rejected / Warning.
	Code    Code
	Reason  string
}

// Applied builds an Applied outcome.
func Applied(state *Session, move *MoveRecord, terminal bool) Outcome {
	return Outcome{Kind: OutcomeApplied, NewState: state, AppliedMove: move, IsTerminal: terminal}
}

// Rejected builds a Rejected outcome: no state change.
func Rejected(code Code, reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Code: code, Reason: reason}
}

// Warning builds a Warning outcome: state IS mutated but the violation is
// non-fatal (e.g. DROP_EXPIRED, TIMEOUT_PENALTY).
func Warning(code Code, reason string, state *Session) Outcome {
	return Outcome{Kind: OutcomeWarning, Code: code, Reason: reason, NewState: state}
}
