// Package model defines the data types shared by every component of the
// chess server: the session record, its variant-specific sub-state, the
// action/outcome sum types that cross the engine boundary, and the error
// taxonomy surfaced to clients.
package model

// Variant identifies one of the five rule-variant families. Subvariant
// narrows within a family where the family has more than one time control
// or mode (classic has three time controls, crazyhouse has two timer
// modes). Together they form the tagged sum type spec.md §9 calls for:
// Variant = Classic(Bullet|Blitz|Standard) | CzStd | CzTimer | SixPt | Decay.
type Variant string

const (
	VariantClassic    Variant = "classic"
	VariantCrazyhouse Variant = "crazyhouse"
	VariantSixPointer Variant = "sixpointer"
	VariantDecay      Variant = "decay"
)

type Subvariant string

const (
	SubvariantNone Subvariant = ""

	SubvariantBullet   Subvariant = "bullet"
	SubvariantBlitz    Subvariant = "blitz"
	SubvariantStandard Subvariant = "standard"

	SubvariantCzStandard  Subvariant = "standard"
	SubvariantCzWithTimer Subvariant = "withTimer"
)

// QueueKey returns the matchmaking queue key for a (variant, subvariant)
// pair, matching the literal set named in spec.md §6
// ("crazyhouse:standard", "crazyhouse:withTimer", "sixpointer", "decay",
// "classic:blitz", "classic:bullet", "classic:standard").
func QueueKey(v Variant, sv Subvariant) string {
	switch v {
	case VariantCrazyhouse, VariantClassic:
		return string(v) + ":" + string(sv)
	default:
		return string(v)
	}
}

// SupportedAssignments is the uniform set the Tournament Manager assigns
// from at enqueue time (spec.md §4.T).
var SupportedAssignments = []struct {
	Variant    Variant
	Subvariant Subvariant
}{
	{VariantDecay, SubvariantNone},
	{VariantSixPointer, SubvariantNone},
	{VariantCrazyhouse, SubvariantCzStandard},
	{VariantCrazyhouse, SubvariantCzWithTimer},
	{VariantClassic, SubvariantBullet},
	{VariantClassic, SubvariantBlitz},
	{VariantClassic, SubvariantStandard},
}

// Color is a player color.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Valid reports whether c is a recognized color.
func (c Color) Valid() bool {
	return c == White || c == Black
}
