// Package query holds the caller-facing query model: attribute predicates,
// ordering, selection and structured index query parameters.
package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// ValueType is the value domain of an attribute.
type ValueType int

// Value types.
const (
	String ValueType = iota
	Enum
	Number
	Time
	Bool
	Identifier
)

func (t ValueType) String() string {
	switch t {
	case String:
		return "string"
	case Enum:
		return "enum"
	case Number:
		return "number"
	case Time:
		return "time"
	case Bool:
		return "bool"
	case Identifier:
		return "id"
	}
	return "unknown"
}

// tagLike value types translate to exact-match clauses.
func (t ValueType) tagLike() bool {
	return t == String || t == Enum || t == Bool || t == Identifier
}

// Attribute is a queryable field, optionally inside a nested scope.
type Attribute struct {
	Name  string
	Scope string
	Field string
	Type  ValueType

	normalize func(string) (string, error)
}

// Nested reports whether the attribute lives inside a repeated sub-document.
func (a Attribute) Nested() bool { return a.Scope != "" }

var (
	specializations = []string{
		content.SpecializationTV, content.SpecializationRadio,
		content.SpecializationFilm, content.SpecializationMusic,
	}
	mediaTypes = []string{content.MediaVideo, content.MediaAudio}
)

var attributes = map[string]Attribute{}

func register(a Attribute) {
	if a.normalize == nil {
		a.normalize = defaultNormalizer(a.Type)
	}
	attributes[a.Name] = a
}

func init() {
	register(Attribute{Name: "id", Field: index.FieldKey, Type: Identifier})
	register(Attribute{Name: "type", Field: index.FieldKind, Type: Enum, normalize: normalizeKind})
	register(Attribute{Name: "title", Field: index.FieldTitleSort, Type: String, normalize: normalizeTitle})
	register(Attribute{Name: "genre", Field: index.FieldGenres, Type: String})
	register(Attribute{Name: "specialization", Field: index.FieldSpecialization, Type: Enum, normalize: oneOf(specializations)})
	register(Attribute{Name: "mediaType", Field: index.FieldMediaType, Type: Enum, normalize: oneOf(mediaTypes)})
	register(Attribute{Name: "year", Field: index.FieldYear, Type: Number})
	register(Attribute{Name: "episodeNumber", Field: index.FieldEpisodeNumber, Type: Number})
	register(Attribute{Name: "seriesNumber", Field: index.FieldSeriesNumber, Type: Number})
	register(Attribute{Name: "transmissionTime", Field: index.FieldTransmissionTime, Type: Time})
	register(Attribute{Name: "brand", Field: index.FieldContainer, Type: Identifier})
	register(Attribute{Name: "series", Field: index.FieldSeries, Type: Identifier})
	register(Attribute{Name: "group", Field: index.FieldGroups, Type: Identifier})
	register(Attribute{Name: "canonicalId", Field: index.FieldCanonical, Type: Identifier})

	bc := index.ScopeBroadcasts
	register(Attribute{Name: "broadcast.channel", Scope: bc, Field: index.FieldChannel, Type: String})
	register(Attribute{Name: "broadcast.transmissionTime", Scope: bc, Field: index.FieldStart, Type: Time})
	register(Attribute{Name: "broadcast.transmissionEndTime", Scope: bc, Field: index.FieldEnd, Type: Time})
	register(Attribute{Name: "broadcast.activelyPublished", Scope: bc, Field: index.FieldActive, Type: Bool})

	loc := index.ScopeLocations
	register(Attribute{Name: "location.available", Scope: loc, Field: index.FieldAvailable, Type: Bool})
	register(Attribute{Name: "location.availabilityStart", Scope: loc, Field: index.FieldStart, Type: Time})
	register(Attribute{Name: "location.availabilityEnd", Scope: loc, Field: index.FieldEnd, Type: Time})
	register(Attribute{Name: "location.platform", Scope: loc, Field: index.FieldPlatform, Type: String})
	register(Attribute{Name: "location.transportType", Scope: loc, Field: index.FieldTransport, Type: String})
	register(Attribute{Name: "location.highDefinition", Scope: loc, Field: index.FieldHD, Type: Bool})

	tp := index.ScopeTopics
	register(Attribute{Name: "topic.id", Scope: tp, Field: index.FieldTopic, Type: Identifier})
	register(Attribute{Name: "topic.weighting", Scope: tp, Field: index.FieldWeighting, Type: Number})
	register(Attribute{Name: "topic.supervised", Scope: tp, Field: index.FieldSupervised, Type: Bool})
	register(Attribute{Name: "topic.relationship", Scope: tp, Field: index.FieldRelationship, Type: String})
}

// LookupAttribute finds a registered attribute by its caller-facing name.
func LookupAttribute(name string) (Attribute, bool) {
	a, ok := attributes[name]
	return a, ok
}

// Attributes returns every registered attribute sorted by name.
func Attributes() []Attribute {
	out := make([]Attribute, 0, len(attributes))
	for _, a := range attributes {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b Attribute) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func defaultNormalizer(t ValueType) func(string) (string, error) {
	switch t {
	case Bool:
		return normalizeBool
	case Identifier:
		return normalizeID
	default:
		return normalizeString
	}
}

func normalizeString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty value")
	}
	return s, nil
}

func normalizeTitle(s string) (string, error) {
	n := index.NormalizeTitle(s)
	if n == "" {
		return "", fmt.Errorf("empty value")
	}
	return n, nil
}

func normalizeBool(s string) (string, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("not a boolean: %q", s)
	}
	return strconv.FormatBool(b), nil
}

func normalizeID(s string) (string, error) {
	id, err := content.ParseID(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func normalizeKind(s string) (string, error) {
	k, err := content.ParseKind(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return string(k), nil
}

func oneOf(allowed []string) func(string) (string, error) {
	return func(s string) (string, error) {
		s = strings.TrimSpace(s)
		if !slices.Contains(allowed, s) {
			return "", fmt.Errorf("%q is not one of %s", s, strings.Join(allowed, ", "))
		}
		return s, nil
	}
}

// ParseNumber parses a numeric attribute value.
func ParseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return f, nil
}

// ParseTime parses an RFC 3339 timestamp or unix seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a time: %q", s)
	}
	return t.UTC(), nil
}
