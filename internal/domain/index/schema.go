// Package index defines the search-index document shape shared by every index backend.
package index

// Scopes name the repeated sub-document groups of a document.
const (
	ScopeBroadcasts = "broadcasts"
	ScopeLocations  = "locations"
	ScopeTopics     = "topics"
)

// Top-level field names.
const (
	FieldID               = "id"
	FieldKey              = "key"
	FieldKind             = "type"
	FieldDocType          = "doc_type"
	FieldPublisher        = "publisher"
	FieldActive           = "active"
	FieldTitle            = "title"
	FieldTitleSort        = "title_sort"
	FieldDescription      = "description"
	FieldGenres           = "genres"
	FieldSpecialization   = "specialization"
	FieldMediaType        = "media_type"
	FieldYear             = "year"
	FieldEpisodeNumber    = "episode_number"
	FieldSeriesNumber     = "series_number"
	FieldTransmissionTime = "transmission_time"
	FieldContainer        = "container"
	FieldSeries           = "series"
	FieldCanonical        = "canonical_id"
	FieldGroups           = "groups"
)

// Nested field names. FieldActive, FieldStart and FieldEnd are shared by
// broadcasts and locations.
const (
	FieldChannel      = "channel"
	FieldStart        = "start"
	FieldEnd          = "end"
	FieldOwner        = "owner"
	FieldAvailable    = "available"
	FieldPlatform     = "platform"
	FieldTransport    = "transport_type"
	FieldHD           = "hd"
	FieldTopic        = "topic"
	FieldWeighting    = "weighting"
	FieldSupervised   = "supervised"
	FieldRelationship = "relationship"
)

// FieldParent links a nested sub-document to its parent document in backends
// that store sub-documents separately.
const FieldParent = "parent"

// Document types.
const (
	DocItem      = "item"
	DocContainer = "container"
)

// FieldType is how a field is indexed.
type FieldType int

const (
	// Tag fields hold exact-match strings (one or many).
	Tag FieldType = iota
	// Numeric fields hold numbers; times are unix seconds.
	Numeric
	// Text fields are tokenized for fuzzy search.
	Text
)

// FieldSpec describes one indexed field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Sortable bool
	// Multi tag fields hold several values per document.
	Multi bool
}

var topLevel = []FieldSpec{
	{Name: FieldID, Type: Numeric, Sortable: true},
	{Name: FieldKey, Type: Tag},
	{Name: FieldKind, Type: Tag},
	{Name: FieldDocType, Type: Tag},
	{Name: FieldPublisher, Type: Tag},
	{Name: FieldActive, Type: Tag},
	{Name: FieldTitle, Type: Text},
	{Name: FieldTitleSort, Type: Tag, Sortable: true},
	{Name: FieldDescription, Type: Text},
	{Name: FieldGenres, Type: Tag, Multi: true},
	{Name: FieldSpecialization, Type: Tag},
	{Name: FieldMediaType, Type: Tag},
	{Name: FieldYear, Type: Numeric, Sortable: true},
	{Name: FieldEpisodeNumber, Type: Numeric, Sortable: true},
	{Name: FieldSeriesNumber, Type: Numeric, Sortable: true},
	{Name: FieldTransmissionTime, Type: Numeric, Sortable: true},
	{Name: FieldContainer, Type: Tag},
	{Name: FieldSeries, Type: Tag},
	{Name: FieldCanonical, Type: Tag},
	{Name: FieldGroups, Type: Tag, Multi: true},
}

var nested = map[string][]FieldSpec{
	ScopeBroadcasts: {
		{Name: FieldChannel, Type: Tag},
		{Name: FieldStart, Type: Numeric},
		{Name: FieldEnd, Type: Numeric},
		{Name: FieldOwner, Type: Tag},
		{Name: FieldActive, Type: Tag},
	},
	ScopeLocations: {
		{Name: FieldAvailable, Type: Tag},
		{Name: FieldStart, Type: Numeric},
		{Name: FieldEnd, Type: Numeric},
		{Name: FieldPlatform, Type: Tag},
		{Name: FieldTransport, Type: Tag},
		{Name: FieldHD, Type: Tag},
	},
	ScopeTopics: {
		{Name: FieldTopic, Type: Tag},
		{Name: FieldWeighting, Type: Numeric},
		{Name: FieldSupervised, Type: Tag},
		{Name: FieldRelationship, Type: Tag},
	},
}

// Fields returns the field set of scope; the empty scope is the top level.
func Fields(scope string) []FieldSpec {
	if scope == "" {
		return topLevel
	}
	return nested[scope]
}

// Scopes returns the nested scope names in a stable order.
func Scopes() []string {
	return []string{ScopeBroadcasts, ScopeLocations, ScopeTopics}
}

// Lookup finds a field within scope.
func Lookup(scope, name string) (FieldSpec, bool) {
	for _, f := range Fields(scope) {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
