package chi

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/query"
)

const actionablePrefix = "actionable."

// searchParams are the fixed query-string parameters of a search. Every
// other key is an attribute predicate (<attribute>.<operator>) or an
// actionable filter (actionable.<key>).
type searchParams struct {
	Publisher  string   `schema:"publisher"`
	Offset     int      `schema:"offset"`
	Limit      int      `schema:"limit"`
	Q          string   `schema:"q"`
	OrderBy    string   `schema:"order_by"`
	Brand      string   `schema:"brand"`
	TopicMin   *float64 `schema:"topic_min"`
	TopicMax   *float64 `schema:"topic_max"`
	Include    string   `schema:"include"`
	Exclude    string   `schema:"exclude"`
	Precedence bool     `schema:"precedence"`
	Equivalent *bool    `schema:"equivalent"`
}

var searchKeys = map[string]bool{
	"publisher": true, "offset": true, "limit": true, "q": true, "order_by": true,
	"brand": true, "topic_min": true, "topic_max": true, "include": true,
	"exclude": true, "precedence": true, "equivalent": true,
}

type searchRequest struct {
	queries    query.AttributeQuerySet
	publishers []content.Publisher
	sel        query.Selection
	params     *query.IndexQueryParams
	equivalent bool
}

// SearchContent handles GET /v1/content/search.
func (s *Server) SearchContent(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeSearch(r.URL.Query())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	engine := s.canonical
	if !req.equivalent {
		engine = s.raw
	}
	res, err := engine.Query(r.Context(), req.queries, req.publishers, req.sel, req.params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ids := res.IDs()
	if ids == nil {
		ids = []content.ID{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		IDs:        ids,
		Members:    res.Groups(),
		Total:      res.Total(),
		Offset:     req.sel.Offset,
		Limit:      req.sel.Limit,
		Incomplete: res.Incomplete(),
	})
}

func (s *Server) decodeSearch(values url.Values) (searchRequest, error) {
	var p searchParams
	if err := s.decoder.Decode(&p, values); err != nil {
		return searchRequest{}, domain.NewQueryError("query string", err.Error())
	}

	publishers, err := content.ParsePublishers(p.Publisher)
	if err != nil {
		return searchRequest{}, domain.NewQueryError("publisher", err.Error())
	}
	if len(publishers) == 0 {
		return searchRequest{}, domain.NewQueryError("publisher", "at least one publisher is required")
	}

	sel, err := query.NewSelection(p.Offset, p.Limit, s.defaultLimit, s.maxLimit)
	if err != nil {
		return searchRequest{}, err
	}

	params, err := s.queryParams(p, values)
	if err != nil {
		return searchRequest{}, err
	}

	queries, err := attributeQueries(values)
	if err != nil {
		return searchRequest{}, err
	}

	return searchRequest{
		queries:    queries,
		publishers: publishers,
		sel:        sel,
		params:     params,
		equivalent: p.Equivalent == nil || *p.Equivalent,
	}, nil
}

func (s *Server) queryParams(p searchParams, values url.Values) (*query.IndexQueryParams, error) {
	ordering, err := query.ParseOrdering(p.OrderBy)
	if err != nil {
		return nil, err
	}
	params := &query.IndexQueryParams{
		FuzzyTerm:      strings.TrimSpace(p.Q),
		Ordering:       ordering,
		PrecedenceSort: p.Precedence,
	}

	if p.Brand != "" {
		brand, err := content.ParseID(p.Brand)
		if err != nil {
			return nil, domain.NewQueryError("brand", err.Error())
		}
		params.BrandID = &brand
	}
	if p.TopicMin != nil || p.TopicMax != nil {
		params.TopicWeighting = &query.WeightingBounds{Min: p.TopicMin, Max: p.TopicMax}
	}
	if params.Include, err = content.ParseIDs(p.Include); err != nil {
		return nil, domain.NewQueryError("include", err.Error())
	}
	if params.Exclude, err = content.ParseIDs(p.Exclude); err != nil {
		return nil, domain.NewQueryError("exclude", err.Error())
	}

	actionable := make(map[string]string)
	for k, vs := range values {
		if key, ok := strings.CutPrefix(k, actionablePrefix); ok && len(vs) > 0 {
			actionable[key] = vs[len(vs)-1]
		}
	}
	if len(actionable) > 0 {
		if params.Actionable, err = query.ParseActionable(actionable, s.now()); err != nil {
			return nil, err
		}
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// attributeQueries parses every <attribute>.<operator> key. Keys are taken
// in sorted order so equal query strings build equal predicate sets.
func attributeQueries(values url.Values) (query.AttributeQuerySet, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		if searchKeys[k] || strings.HasPrefix(k, actionablePrefix) {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	queries := make([]query.AttributeQuery, 0, len(keys))
	for _, k := range keys {
		dot := strings.LastIndex(k, ".")
		if dot <= 0 {
			return query.AttributeQuerySet{}, domain.NewQueryError(k, "unknown parameter")
		}
		op, err := query.ParseOperator(k[dot+1:])
		if err != nil {
			return query.AttributeQuerySet{}, err
		}
		q, err := query.NewAttributeQuery(k[:dot], op, splitValues(values[k])...)
		if err != nil {
			return query.AttributeQuerySet{}, err
		}
		queries = append(queries, q)
	}
	return query.NewAttributeQuerySet(queries...), nil
}

func splitValues(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, v := range strings.Split(r, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
