// Package stock clamps cart quantities against known inventory limits.
package stock

// DefaultCeiling applies when the stock of a product is unknown.
const DefaultCeiling = 10

// EffectiveCeiling returns the known ceiling, or DefaultCeiling when it is nil.
func EffectiveCeiling(ceiling *int) int {
	if ceiling == nil {
		return DefaultCeiling
	}
	return *ceiling
}

// Clamp bounds requested to [1, EffectiveCeiling(ceiling)]. The result is at
// least 1 even for a zero ceiling; callers reject zero-stock adds before
// clamping.
func Clamp(requested int, ceiling *int) int {
	return max(1, min(requested, EffectiveCeiling(ceiling)))
}

// CanAdd reports whether add more units fit next to current ones. An unknown
// ceiling never blocks here; the default ceiling is enforced by Clamp.
func CanAdd(current, add int, ceiling *int) bool {
	if ceiling == nil {
		return true
	}
	return current+add <= *ceiling
}

// Remaining returns how many more units may be added. With an unknown
// ceiling the result is not floored at zero.
func Remaining(current int, ceiling *int) int {
	if ceiling == nil {
		return DefaultCeiling - current
	}
	return max(0, *ceiling-current)
}
