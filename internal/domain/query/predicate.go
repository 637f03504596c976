package query

import (
	"fmt"
	"strings"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

// Operator is a predicate comparison.
type Operator string

// Operators.
const (
	Equals      Operator = "equals"
	Beginning   Operator = "beginning"
	GreaterThan Operator = "greater_than"
	LessThan    Operator = "less_than"
	Between     Operator = "between"
)

// ParseOperator resolves an operator name.
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case Equals, Beginning, GreaterThan, LessThan, Between:
		return op, nil
	}
	return "", domain.NewQueryError(s, "unknown operator")
}

func (op Operator) accepts(t ValueType) bool {
	switch op {
	case Equals:
		return true
	case Beginning:
		return t == String
	case GreaterThan, LessThan, Between:
		return t == Number || t == Time
	}
	return false
}

// AttributeQuery is a single (attribute, operator, values) predicate.
// Values are validated and normalized at construction.
type AttributeQuery struct {
	attr    Attribute
	op      Operator
	values  []string
	numbers []float64
}

// NewAttributeQuery validates a predicate. An unknown attribute, an operator the
// attribute does not support, or a malformed value is an ErrInvalidQuery.
func NewAttributeQuery(name string, op Operator, values ...string) (AttributeQuery, error) {
	attr, ok := LookupAttribute(name)
	if !ok {
		return AttributeQuery{}, domain.NewQueryError(name, "unknown attribute")
	}
	element := name + "." + string(op)
	if !op.accepts(attr.Type) {
		return AttributeQuery{}, domain.NewQueryError(element,
			fmt.Sprintf("operator not supported for %s attribute", attr.Type))
	}
	if len(values) == 0 {
		return AttributeQuery{}, domain.NewQueryError(element, "at least one value is required")
	}

	switch op {
	case Beginning, GreaterThan, LessThan:
		if len(values) != 1 {
			return AttributeQuery{}, domain.NewQueryError(element, "exactly one value is required")
		}
	case Between:
		if len(values) != 2 {
			return AttributeQuery{}, domain.NewQueryError(element, "exactly two values are required")
		}
	case Equals:
		if !attr.Type.tagLike() && len(values) != 1 {
			return AttributeQuery{}, domain.NewQueryError(element, "exactly one value is required")
		}
	}

	q := AttributeQuery{attr: attr, op: op}
	if attr.Type.tagLike() {
		q.values = make([]string, 0, len(values))
		for _, v := range values {
			n, err := attr.normalize(v)
			if err != nil {
				return AttributeQuery{}, domain.NewQueryError(element, err.Error())
			}
			q.values = append(q.values, n)
		}
		return q, nil
	}

	q.numbers = make([]float64, 0, len(values))
	for _, v := range values {
		f, err := parseNumeric(attr.Type, v)
		if err != nil {
			return AttributeQuery{}, domain.NewQueryError(element, err.Error())
		}
		q.numbers = append(q.numbers, f)
	}
	if op == Between && q.numbers[0] > q.numbers[1] {
		return AttributeQuery{}, domain.NewQueryError(element, "lower bound exceeds upper bound")
	}
	return q, nil
}

func parseNumeric(t ValueType, s string) (float64, error) {
	if t == Time {
		ts, err := ParseTime(s)
		if err != nil {
			return 0, err
		}
		return float64(ts.Unix()), nil
	}
	return ParseNumber(s)
}

// Attribute returns the targeted attribute.
func (q AttributeQuery) Attribute() Attribute { return q.attr }

// Operator returns the comparison operator.
func (q AttributeQuery) Operator() Operator { return q.op }

// Values returns the normalized values of a string, enum, bool or id predicate.
func (q AttributeQuery) Values() []string { return q.values }

// Numbers returns the parsed values of a number or time predicate (times in unix seconds).
func (q AttributeQuery) Numbers() []float64 { return q.numbers }

// Condition translates the predicate into exactly one native clause on its field.
// Nested predicates yield a clause on the nested field; grouping them into a
// scope is the caller's job.
func (q AttributeQuery) Condition() (filter.Condition, error) {
	key := q.attr.Field
	switch q.op {
	case Equals:
		if q.attr.Type.tagLike() {
			return filter.NewMatchAny(key, q.values...)
		}
		v := q.numbers[0]
		return rangeCondition(key, nil, &v, nil, &v)
	case Beginning:
		return filter.NewPrefix(key, q.values[0])
	case GreaterThan:
		v := q.numbers[0]
		return rangeCondition(key, &v, nil, nil, nil)
	case LessThan:
		v := q.numbers[0]
		return rangeCondition(key, nil, nil, &v, nil)
	case Between:
		lo, hi := q.numbers[0], q.numbers[1]
		return rangeCondition(key, nil, &lo, nil, &hi)
	}
	return filter.Condition{}, domain.NewQueryError(string(q.op), "unknown operator")
}

func rangeCondition(key string, gt, gte, lt, lte *float64) (filter.Condition, error) {
	r, err := filter.NewRangeFilter(gt, gte, lt, lte)
	if err != nil {
		return filter.Condition{}, err
	}
	return filter.NewRange(key, r)
}

// AttributeQuerySet is an ordered set of predicates combined with AND.
type AttributeQuerySet struct {
	queries []AttributeQuery
}

// NewAttributeQuerySet creates a set preserving the given order.
func NewAttributeQuerySet(queries ...AttributeQuery) AttributeQuerySet {
	qs := make([]AttributeQuery, len(queries))
	copy(qs, queries)
	return AttributeQuerySet{queries: qs}
}

// Queries returns the predicates in order.
func (s AttributeQuerySet) Queries() []AttributeQuery { return s.queries }

// Len returns the number of predicates.
func (s AttributeQuerySet) Len() int { return len(s.queries) }

// ByScope splits predicates into top-level ones and per-scope groups, keeping
// order within each group. Scopes are returned in first-seen order.
func (s AttributeQuerySet) ByScope() (top []AttributeQuery, scopes []string, nested map[string][]AttributeQuery) {
	nested = make(map[string][]AttributeQuery)
	for _, q := range s.queries {
		if !q.attr.Nested() {
			top = append(top, q)
			continue
		}
		if _, ok := nested[q.attr.Scope]; !ok {
			scopes = append(scopes, q.attr.Scope)
		}
		nested[q.attr.Scope] = append(nested[q.attr.Scope], q)
	}
	return top, scopes, nested
}
