package variant

import "chessvariants-server/internal/model"

// key is the (variant, subvariant) pair the Dispatcher looks engines up by.
type key struct {
	variant    model.Variant
	subvariant model.Subvariant
}

var engines = map[key]Engine{
	{model.VariantClassic, model.SubvariantBullet}:   ClassicEngine{},
	{model.VariantClassic, model.SubvariantBlitz}:    ClassicEngine{},
	{model.VariantClassic, model.SubvariantStandard}: ClassicEngine{},

	{model.VariantCrazyhouse, model.SubvariantCzStandard}:  CrazyhouseStandardEngine{},
	{model.VariantCrazyhouse, model.SubvariantCzWithTimer}: CrazyhouseTimerEngine{},

	{model.VariantDecay, model.SubvariantNone}:      DecayEngine{},
	{model.VariantSixPointer, model.SubvariantNone}: SixPointerEngine{},
}

var timeControls = map[key]model.TimeControl{
	{model.VariantClassic, model.SubvariantBullet}:   ClassicTimeControls[model.SubvariantBullet],
	{model.VariantClassic, model.SubvariantBlitz}:    ClassicTimeControls[model.SubvariantBlitz],
	{model.VariantClassic, model.SubvariantStandard}: ClassicTimeControls[model.SubvariantStandard],

	{model.VariantCrazyhouse, model.SubvariantCzStandard}:  CrazyhouseStandardTimeControl,
	{model.VariantCrazyhouse, model.SubvariantCzWithTimer}: CrazyhouseTimerTimeControl,

	{model.VariantDecay, model.SubvariantNone}:      DecayTimeControls[model.SubvariantStandard],
	{model.VariantSixPointer, model.SubvariantNone}: SixPointerTimeControl,
}

// Lookup resolves a (variant, subvariant) pair to its Engine, per spec.md
// §4.E's five-variant dispatch table. The bool result is false for an
// unrecognized pair, which the Dispatcher surfaces as INVALID_INPUT.
func Lookup(v model.Variant, sv model.Subvariant) (Engine, bool) {
	e, ok := engines[key{v, sv}]
	return e, ok
}

// TimeControlFor resolves the clock parameters a new session of (v, sv)
// should be created with.
func TimeControlFor(v model.Variant, sv model.Subvariant) (model.TimeControl, bool) {
	tc, ok := timeControls[key{v, sv}]
	return tc, ok
}
