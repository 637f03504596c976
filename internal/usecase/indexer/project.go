package indexer

import (
	"slices"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// Project builds the index document for c. existing, when not nil, is the
// currently stored document: its canonical id, group memberships and (for
// containers) the broadcast facts owned by other records are carried over.
func Project(c *content.Content, existing *index.Document) *index.Document {
	doc := &index.Document{
		ID:             c.ID,
		Kind:           c.Kind,
		Publisher:      c.Publisher,
		Active:         c.ActivelyPublished,
		Title:          c.Title,
		Description:    c.Description,
		Genres:         slices.Clone(c.Genres),
		Specialization: c.Specialization,
		MediaType:      c.MediaType,
		Year:           positive(c.Year),
		EpisodeNumber:  positive(c.EpisodeNumber),
		SeriesNumber:   positive(c.SeriesNumber),
		Container:      cloneID(c.Container),
		Series:         cloneID(c.Series),
		Broadcasts:     ownBroadcasts(c),
		Locations:      locations(c.Encodings),
		Topics:         topics(c.Topics),
	}

	if existing != nil {
		doc.Canonical = cloneID(existing.Canonical)
		doc.Groups = slices.Clone(existing.Groups)
		if c.Kind.IsContainer() {
			for _, b := range existing.Broadcasts {
				if b.Owner != c.ID {
					doc.Broadcasts = append(doc.Broadcasts, b)
				}
			}
		}
	}
	index.SortBroadcasts(doc.Broadcasts)
	return doc
}

func ownBroadcasts(c *content.Content) []index.Broadcast {
	if len(c.Broadcasts) == 0 {
		return nil
	}
	out := make([]index.Broadcast, 0, len(c.Broadcasts))
	for _, b := range c.Broadcasts {
		out = append(out, index.Broadcast{
			Channel: b.ChannelID,
			Start:   b.TransmissionStart.UTC(),
			End:     b.TransmissionEnd.UTC(),
			Owner:   c.ID,
			Active:  b.ActivelyPublished,
		})
	}
	return out
}

// locations flattens encodings; each location inherits its encoding's HD flag.
func locations(encs []content.Encoding) []index.Location {
	var out []index.Location
	for _, e := range encs {
		for _, l := range e.Locations {
			out = append(out, index.Location{
				Available:     l.Available,
				Start:         cloneTime(l.AvailabilityStart),
				End:           cloneTime(l.AvailabilityEnd),
				Platform:      l.Platform,
				TransportType: l.TransportType,
				HD:            e.HighDefinition,
			})
		}
	}
	return out
}

func topics(refs []content.TopicRef) []index.Topic {
	if len(refs) == 0 {
		return nil
	}
	out := make([]index.Topic, len(refs))
	for i, r := range refs {
		out[i] = index.Topic{
			Topic:        r.TopicID,
			Weighting:    r.Weighting,
			Supervised:   r.Supervised,
			Relationship: r.Relationship,
		}
	}
	return out
}

func positive(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}

func cloneID(id *content.ID) *content.ID {
	if id == nil {
		return nil
	}
	return content.Ref(*id)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
