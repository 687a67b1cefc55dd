package sched

// Tick is the wrapping 32-bit millisecond counter used for both the
// timer tree's expiration keys and the runqueue tree's insertion
// counter (spec.md glossary: "Tick / TICK_ETERNITY"). Comparisons use
// signed 32-bit subtraction so that wraparound at 2^32 is handled the
// same way Linux's jiffies/time_after does: a key is only "due" once
// now has caught up to it within half the key space, which matches
// HAProxy's "now - 2^31 .. now + 2^31 - 1" window semantics without
// needing a dedicated windowed tree lookup.
type Tick uint32

// Eternity is the reserved value meaning "never scheduled" (spec.md
// glossary "TICK_ETERNITY"). Tasks whose expire is Eternity never
// appear in the timer tree.
const Eternity Tick = 0

// Before reports whether a is strictly earlier than b, correctly
// handling wraparound (spec.md 4.C "a wrapping 32-bit tick").
func (a Tick) Before(b Tick) bool {
	return int32(a-b) < 0
}

// After reports whether a is strictly later than b.
func (a Tick) After(b Tick) bool {
	return int32(a-b) > 0
}

// Due reports whether this tick has already arrived relative to now
// (i.e. now >= tick, mod wraparound).
func (a Tick) Due(now Tick) bool {
	return !now.Before(a)
}
