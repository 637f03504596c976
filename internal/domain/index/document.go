package index

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

// Document is the index projection of one top-level content record.
//
// Canonical, Groups and, for containers, Broadcasts owned by other records are
// written by other paths (equivalence updates, group projection, the episode
// denormalizer) and must survive a re-index of the record itself.
type Document struct {
	ID             content.ID        `json:"id"`
	Kind           content.Kind      `json:"type"`
	Publisher      content.Publisher `json:"publisher"`
	Active         bool              `json:"activelyPublished"`
	Title          string            `json:"title,omitempty"`
	Description    string            `json:"description,omitempty"`
	Genres         []string          `json:"genres,omitempty"`
	Specialization string            `json:"specialization,omitempty"`
	MediaType      string            `json:"mediaType,omitempty"`
	Year           *int              `json:"year,omitempty"`
	EpisodeNumber  *int              `json:"episodeNumber,omitempty"`
	SeriesNumber   *int              `json:"seriesNumber,omitempty"`
	Container      *content.ID       `json:"container,omitempty"`
	Series         *content.ID       `json:"series,omitempty"`
	Canonical      *content.ID       `json:"canonicalId,omitempty"`
	Groups         []content.ID      `json:"groups,omitempty"`
	Broadcasts     []Broadcast       `json:"broadcasts,omitempty"`
	Locations      []Location        `json:"locations,omitempty"`
	Topics         []Topic           `json:"topics,omitempty"`
}

// Broadcast is a broadcast fact. On item documents Owner is the item itself;
// on container documents it is the episode the fact was denormalized from.
type Broadcast struct {
	Channel string     `json:"channel"`
	Start   time.Time  `json:"transmissionTime"`
	End     time.Time  `json:"transmissionEndTime"`
	Owner   content.ID `json:"owner"`
	Active  bool       `json:"activelyPublished"`
}

// Location is a flattened encoding location.
type Location struct {
	Available     bool       `json:"available"`
	Start         *time.Time `json:"availabilityStart,omitempty"`
	End           *time.Time `json:"availabilityEnd,omitempty"`
	Platform      string     `json:"platform,omitempty"`
	TransportType string     `json:"transportType,omitempty"`
	HD            bool       `json:"highDefinition,omitempty"`
}

// OpenStart and OpenEnd stand in for missing availability bounds so that
// "available at t" is a plain range match on every backend.
var (
	OpenStart = time.Unix(0, 0).UTC()
	OpenEnd   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

// AvailableFrom returns the availability start, or OpenStart when unbounded.
func (l Location) AvailableFrom() time.Time {
	if l.Start == nil {
		return OpenStart
	}
	return *l.Start
}

// AvailableUntil returns the availability end, or OpenEnd when unbounded.
func (l Location) AvailableUntil() time.Time {
	if l.End == nil {
		return OpenEnd
	}
	return *l.End
}

// Topic is a weighted topic association.
type Topic struct {
	Topic        content.ID `json:"topic"`
	Weighting    float64    `json:"weighting"`
	Supervised   bool       `json:"supervised,omitempty"`
	Relationship string     `json:"relationship,omitempty"`
}

// DocType returns DocContainer for series and brands, DocItem otherwise.
func (d *Document) DocType() string {
	if d.Kind.IsContainer() {
		return DocContainer
	}
	return DocItem
}

// TitleSort is the normalized title used for sorting and prefix matching.
func (d *Document) TitleSort() string {
	return NormalizeTitle(d.Title)
}

// NormalizeTitle lowercases and collapses whitespace.
func NormalizeTitle(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// TransmissionTime returns the earliest start among actively-published broadcasts.
func (d *Document) TransmissionTime() (time.Time, bool) {
	var first time.Time
	found := false
	for _, b := range d.Broadcasts {
		if !b.Active {
			continue
		}
		if !found || b.Start.Before(first) {
			first = b.Start
			found = true
		}
	}
	return first, found
}

// Value is a field value as the index sees it.
type Value struct {
	Tags  []string
	Num   float64
	IsNum bool
}

func tag(s ...string) Value { return Value{Tags: s} }

func num(f float64) Value { return Value{Num: f, IsNum: true} }

func boolTag(b bool) Value { return tag(strconv.FormatBool(b)) }

func unix(t time.Time) Value { return num(float64(t.Unix())) }

func idTag(id content.ID) Value { return tag(id.String()) }

func idTags(ids []content.ID) Value { return tag(content.Strings(ids)...) }

func intNum(v *int) (Value, bool) {
	if v == nil {
		return Value{}, false
	}
	return num(float64(*v)), true
}

func optID(id *content.ID) (Value, bool) {
	if id == nil {
		return Value{}, false
	}
	return idTag(*id), true
}

func optional(ok bool, v func() Value) (Value, bool) {
	if !ok {
		return Value{}, false
	}
	return v(), true
}

// Field returns the value of a top-level field. ok is false when the field is absent.
func (d *Document) Field(name string) (Value, bool) {
	switch name {
	case FieldID:
		return num(float64(d.ID)), true
	case FieldKey:
		return idTag(d.ID), true
	case FieldKind:
		return tag(string(d.Kind)), true
	case FieldDocType:
		return tag(d.DocType()), true
	case FieldPublisher:
		return tag(string(d.Publisher)), true
	case FieldActive:
		return boolTag(d.Active), true
	case FieldTitle:
		return optional(d.Title != "", func() Value { return tag(d.Title) })
	case FieldTitleSort:
		return optional(d.Title != "", func() Value { return tag(d.TitleSort()) })
	case FieldDescription:
		return optional(d.Description != "", func() Value { return tag(d.Description) })
	case FieldGenres:
		return optional(len(d.Genres) > 0, func() Value { return tag(d.Genres...) })
	case FieldSpecialization:
		return optional(d.Specialization != "", func() Value { return tag(d.Specialization) })
	case FieldMediaType:
		return optional(d.MediaType != "", func() Value { return tag(d.MediaType) })
	case FieldYear:
		return intNum(d.Year)
	case FieldEpisodeNumber:
		return intNum(d.EpisodeNumber)
	case FieldSeriesNumber:
		return intNum(d.SeriesNumber)
	case FieldTransmissionTime:
		t, ok := d.TransmissionTime()
		return optional(ok, func() Value { return unix(t) })
	case FieldContainer:
		return optID(d.Container)
	case FieldSeries:
		return optID(d.Series)
	case FieldCanonical:
		return optID(d.Canonical)
	case FieldGroups:
		return optional(len(d.Groups) > 0, func() Value { return idTags(d.Groups) })
	}
	return Value{}, false
}

// Field returns the value of a broadcast field.
func (b Broadcast) Field(name string) (Value, bool) {
	switch name {
	case FieldChannel:
		return tag(b.Channel), true
	case FieldStart:
		return unix(b.Start), true
	case FieldEnd:
		return optional(!b.End.IsZero(), func() Value { return unix(b.End) })
	case FieldOwner:
		return idTag(b.Owner), true
	case FieldActive:
		return boolTag(b.Active), true
	}
	return Value{}, false
}

// Field returns the value of a location field.
func (l Location) Field(name string) (Value, bool) {
	switch name {
	case FieldAvailable:
		return boolTag(l.Available), true
	case FieldStart:
		return unix(l.AvailableFrom()), true
	case FieldEnd:
		return unix(l.AvailableUntil()), true
	case FieldPlatform:
		return optional(l.Platform != "", func() Value { return tag(l.Platform) })
	case FieldTransport:
		return optional(l.TransportType != "", func() Value { return tag(l.TransportType) })
	case FieldHD:
		return boolTag(l.HD), true
	}
	return Value{}, false
}

// Field returns the value of a topic field.
func (t Topic) Field(name string) (Value, bool) {
	switch name {
	case FieldTopic:
		return idTag(t.Topic), true
	case FieldWeighting:
		return num(t.Weighting), true
	case FieldSupervised:
		return boolTag(t.Supervised), true
	case FieldRelationship:
		return optional(t.Relationship != "", func() Value { return tag(t.Relationship) })
	}
	return Value{}, false
}

// Getter reads one field of a document or sub-document.
type Getter func(name string) (Value, bool)

// Elements returns a getter per sub-document of scope.
func (d *Document) Elements(scope string) []Getter {
	var out []Getter
	switch scope {
	case ScopeBroadcasts:
		for _, b := range d.Broadcasts {
			out = append(out, b.Field)
		}
	case ScopeLocations:
		for _, l := range d.Locations {
			out = append(out, l.Field)
		}
	case ScopeTopics:
		for _, t := range d.Topics {
			out = append(out, t.Field)
		}
	}
	return out
}

// SortBroadcasts orders facts by start, then end, channel and owner.
func SortBroadcasts(bs []Broadcast) {
	slices.SortFunc(bs, CompareBroadcasts)
}

// CompareBroadcasts is the total order used for stored broadcast facts.
func CompareBroadcasts(a, b Broadcast) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := a.End.Compare(b.End); c != 0 {
		return c
	}
	if c := strings.Compare(a.Channel, b.Channel); c != 0 {
		return c
	}
	switch {
	case a.Owner < b.Owner:
		return -1
	case a.Owner > b.Owner:
		return 1
	}
	return 0
}
