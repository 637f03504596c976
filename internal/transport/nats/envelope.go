package nats

import (
	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// Stream and subject names.
const (
	DefaultStream   = "CONTENT"
	DefaultConsumer = "contentdex-indexer"

	SubjectContent     = "CONTENT.content"
	SubjectGroup       = "CONTENT.group"
	SubjectEquivalence = "CONTENT.equivalence"
)

// Envelope is the JSON body of every ingestion message. Which payload field
// is read depends on the subject the message arrived on.
type Envelope struct {
	ID          string              `json:"id,omitempty"`
	Content     *content.Content    `json:"content,omitempty"`
	Group       *content.Group      `json:"group,omitempty"`
	Equivalence *EquivalencePayload `json:"equivalence,omitempty"`
}

// EquivalencePayload assigns members to a canonical id.
type EquivalencePayload struct {
	Canonical content.ID   `json:"canonical"`
	Members   []content.ID `json:"members"`
}
