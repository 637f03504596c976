package content

import "fmt"

// Group is an ordered collection of content (playlist, person credits, season pack).
type Group struct {
	ID        ID        `json:"id"`
	Publisher Publisher `json:"publisher"`
	Type      string    `json:"type,omitempty"`
	Members   []ID      `json:"members"`
}

// Validate checks group invariants.
func (g *Group) Validate() error {
	if g.ID <= 0 {
		return fmt.Errorf("group id must be positive, got %d", g.ID)
	}
	if !g.Publisher.IsValid() {
		return fmt.Errorf("unknown publisher %q", string(g.Publisher))
	}
	for _, m := range g.Members {
		if m <= 0 {
			return fmt.Errorf("group %d has invalid member id %d", g.ID, m)
		}
	}
	return nil
}
