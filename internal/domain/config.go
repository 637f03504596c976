package domain

// DefaultKeyPrefix namespaces every key the service writes.
const DefaultKeyPrefix = "cdx:"

// WideningPolicy controls how the canonicalizing orchestrator over-fetches raw hits
// when equivalence collapsing shrinks a page.
type WideningPolicy struct {
	InitialFactor float64 // first window = InitialFactor * (offset+limit)
	GrowthFactor  float64 // extra multiplier applied to the observed collapse ratio
	MaxRounds     int     // widening rounds before giving up with an incomplete result
	MaxWindow     int     // hard cap on raw hits gathered for one query
}

// DefaultWideningPolicy returns the policy used when config leaves fields empty.
func DefaultWideningPolicy() WideningPolicy {
	return WideningPolicy{
		InitialFactor: 2,
		GrowthFactor:  1.5,
		MaxRounds:     4,
		MaxWindow:     5000,
	}
}
