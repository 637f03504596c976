package filter

import "fmt"

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 64

// Expression is a structured filter with must/should/must_not boolean semantics.
// An empty should group is ignored; a non-empty one requires at least one match.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// HasNested reports whether any condition at this level is a nested scope.
func (e Expression) HasNested() bool {
	for _, group := range [][]Condition{e.must, e.should, e.mustNot} {
		for _, c := range group {
			if c.IsNested() {
				return true
			}
		}
	}
	return false
}

// Map returns a copy of e with every condition passed through fn.
// fn may replace a condition (e.g. resolve a nested scope into an id match).
func (e Expression) Map(fn func(Condition) (Condition, error)) (Expression, error) {
	mapGroup := func(in []Condition) ([]Condition, error) {
		if len(in) == 0 {
			return nil, nil
		}
		out := make([]Condition, len(in))
		for i, c := range in {
			m, err := fn(c)
			if err != nil {
				return nil, err
			}
			out[i] = m
		}
		return out, nil
	}
	must, err := mapGroup(e.must)
	if err != nil {
		return Expression{}, err
	}
	should, err := mapGroup(e.should)
	if err != nil {
		return Expression{}, err
	}
	mustNot, err := mapGroup(e.mustNot)
	if err != nil {
		return Expression{}, err
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Condition is a single filter clause: a tag match (any of values), a prefix,
// a numeric range, or a nested scope that one sub-document must satisfy as a whole.
type Condition struct {
	key       string
	values    []string
	prefix    string
	rangeExpr *Range
	nested    *Expression
}

// NewMatch creates an exact tag match condition.
func NewMatch(key, match string) (Condition, error) {
	return NewMatchAny(key, match)
}

// NewMatchAny creates a tag condition that matches when the field holds any of values.
func NewMatchAny(key string, values ...string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if len(values) == 0 {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	for _, v := range values {
		if v == "" {
			return Condition{}, fmt.Errorf("empty match value for key %q", key)
		}
	}
	vs := make([]string, len(values))
	copy(vs, values)
	return Condition{key: key, values: vs}, nil
}

// NewPrefix creates a prefix condition over a tag field.
func NewPrefix(key, prefix string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if prefix == "" {
		return Condition{}, fmt.Errorf("prefix is required for key %q", key)
	}
	return Condition{key: key, prefix: prefix}, nil
}

// NewRange creates a numeric range condition.
func NewRange(key string, r Range) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	return Condition{key: key, rangeExpr: &r}, nil
}

// NewNested creates a nested-scope condition: scope is the repeated group name
// and inner must be satisfied by a single element of that group.
func NewNested(scope string, inner Expression) (Condition, error) {
	if scope == "" {
		return Condition{}, fmt.Errorf("nested scope is required")
	}
	if inner.IsEmpty() {
		return Condition{}, fmt.Errorf("nested scope %q has no conditions", scope)
	}
	if inner.HasNested() {
		return Condition{}, fmt.Errorf("nested scope %q cannot contain another nested scope", scope)
	}
	return Condition{key: scope, nested: &inner}, nil
}

// Key returns the field name, or the group name for nested scopes.
func (c Condition) Key() string { return c.key }

// Match returns the first match value.
func (c Condition) Match() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

// Values returns all match values.
func (c Condition) Values() []string { return c.values }

// Prefix returns the prefix value.
func (c Condition) Prefix() string { return c.prefix }

// Range returns the numeric range expression.
func (c Condition) Range() *Range { return c.rangeExpr }

// Nested returns the inner expression of a nested scope.
func (c Condition) Nested() *Expression { return c.nested }

// IsMatch reports whether this is a match condition.
func (c Condition) IsMatch() bool { return len(c.values) > 0 }

// IsPrefix reports whether this is a prefix condition.
func (c Condition) IsPrefix() bool { return c.prefix != "" }

// IsRange reports whether this is a range condition.
func (c Condition) IsRange() bool { return c.rangeExpr != nil }

// IsNested reports whether this is a nested-scope condition.
func (c Condition) IsNested() bool { return c.nested != nil }

// Range is a numeric range with gt/gte/lt/lte boundaries.
type Range struct {
	gt  *float64
	gte *float64
	lt  *float64
	lte *float64
}

// NewRangeFilter validates and creates a Range.
// At least one boundary required. gt/gte and lt/lte are mutually exclusive.
func NewRangeFilter(gt, gte, lt, lte *float64) (Range, error) {
	if gt == nil && gte == nil && lt == nil && lte == nil {
		return Range{}, fmt.Errorf("at least one range boundary is required")
	}
	if gt != nil && gte != nil {
		return Range{}, fmt.Errorf("cannot specify both gt and gte")
	}
	if lt != nil && lte != nil {
		return Range{}, fmt.Errorf("cannot specify both lt and lte")
	}
	return Range{gt: gt, gte: gte, lt: lt, lte: lte}, nil
}

// GT returns the lower exclusive bound.
func (r Range) GT() *float64 { return r.gt }

// GTE returns the lower inclusive bound.
func (r Range) GTE() *float64 { return r.gte }

// LT returns the upper exclusive bound.
func (r Range) LT() *float64 { return r.lt }

// LTE returns the upper inclusive bound.
func (r Range) LTE() *float64 { return r.lte }

// Contains reports whether v falls within the range.
func (r Range) Contains(v float64) bool {
	if r.gt != nil && v <= *r.gt {
		return false
	}
	if r.gte != nil && v < *r.gte {
		return false
	}
	if r.lt != nil && v >= *r.lt {
		return false
	}
	if r.lte != nil && v > *r.lte {
		return false
	}
	return true
}
