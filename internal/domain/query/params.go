package query

import (
	"strings"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

// Selection is the pagination window over the logical result sequence.
type Selection struct {
	Offset int
	Limit  int
}

// NewSelection validates offset and applies the limit default and ceiling.
func NewSelection(offset, limit, defaultLimit, maxLimit int) (Selection, error) {
	if offset < 0 {
		return Selection{}, domain.NewQueryError("offset", "must not be negative")
	}
	if limit < 0 {
		return Selection{}, domain.NewQueryError("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Selection{Offset: offset, Limit: limit}, nil
}

// End returns offset+limit: the number of leading results the window needs.
func (s Selection) End() int { return s.Offset + s.Limit }

// Order is one ordering key.
type Order struct {
	Attribute string
	Field     string
	Desc      bool
}

var sortable = map[string]string{
	"title":            index.FieldTitleSort,
	"year":             index.FieldYear,
	"episodeNumber":    index.FieldEpisodeNumber,
	"seriesNumber":     index.FieldSeriesNumber,
	"transmissionTime": index.FieldTransmissionTime,
	"id":               index.FieldID,
}

// ParseOrdering parses a comma-separated list of field.direction tokens,
// e.g. "seriesNumber.asc,episodeNumber.asc". Empty input yields no ordering.
func ParseOrdering(s string) ([]Order, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []Order
	seen := make(map[string]bool)
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		dot := strings.LastIndexByte(token, '.')
		if dot <= 0 || dot == len(token)-1 {
			return nil, domain.NewQueryError("order_by", "expected field.direction, got "+quote(token))
		}
		name, dir := token[:dot], strings.ToLower(token[dot+1:])
		field, ok := sortable[name]
		if !ok {
			return nil, domain.NewQueryError("order_by", "unsortable field "+quote(name))
		}
		if dir != "asc" && dir != "desc" {
			return nil, domain.NewQueryError("order_by", "unknown direction "+quote(dir))
		}
		if seen[name] {
			return nil, domain.NewQueryError("order_by", "duplicate field "+quote(name))
		}
		seen[name] = true
		out = append(out, Order{Attribute: name, Field: field, Desc: dir == "desc"})
	}
	return out, nil
}

func quote(s string) string { return `"` + s + `"` }

// WeightingBounds are inclusive topic-weighting bounds; a nil side is open.
type WeightingBounds struct {
	Min *float64
	Max *float64
}

// IndexQueryParams are the optional structured parameters of a query.
type IndexQueryParams struct {
	FuzzyTerm      string
	Ordering       []Order
	BrandID        *content.ID
	TopicWeighting *WeightingBounds
	// Include restricts results to these ids, Exclude removes them; used to
	// stitch disjoint result sets across calls.
	Include        []content.ID
	Exclude        []content.ID
	Actionable     Actionable
	PrecedenceSort bool
}

// Validate checks cross-field constraints.
func (p *IndexQueryParams) Validate() error {
	if p == nil {
		return nil
	}
	if w := p.TopicWeighting; w != nil {
		if w.Min == nil && w.Max == nil {
			return domain.NewQueryError("topic_weighting", "at least one bound is required")
		}
		if w.Min != nil && w.Max != nil && *w.Min > *w.Max {
			return domain.NewQueryError("topic_weighting", "min exceeds max")
		}
	}
	if p.BrandID != nil && *p.BrandID <= 0 {
		return domain.NewQueryError("brand", "must be a positive id")
	}
	return nil
}

// Ordered reports whether an explicit ordering was requested.
func (p *IndexQueryParams) Ordered() bool { return p != nil && len(p.Ordering) > 0 }
