package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/atlasmeta/contentdex/internal/db"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

// errNestedUnresolved is returned when a nested-scope condition reaches the driver.
var errNestedUnresolved = errors.New("nested scope conditions must be resolved before search")

// Aggregate runs an FT.AGGREGATE pipeline.
func (s *Store) Aggregate(ctx context.Context, q *db.AggregateQuery) (*db.SearchResult, error) {
	args, err := buildAggregateArgs(q)
	if err != nil {
		return nil, err
	}

	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpAggregate, Err: err}
	}

	return parseAggregateResult(raw)
}

// AggregateAll runs q WITHCURSOR and keeps reading until the cursor is
// exhausted or more than limit rows arrived. A cursor left open is deleted.
func (s *Store) AggregateAll(ctx context.Context, q *db.AggregateQuery, limit int) (*db.SearchResult, error) {
	args, err := buildCursorArgs(q)
	if err != nil {
		return nil, err
	}

	op := db.OpAggregate
	cmd := s.b().Arbitrary("FT.AGGREGATE").Args(args...).Build()
	out := &db.SearchResult{}
	for {
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			return nil, &db.Error{Op: op, Err: err}
		}
		page, cursor, err := parseCursorReply(raw)
		if err != nil {
			return nil, err
		}
		out.Total = max(out.Total, page.Total)
		out.Entries = append(out.Entries, page.Entries...)

		if cursor == 0 {
			return out, nil
		}
		id := strconv.FormatInt(cursor, 10)
		if len(out.Entries) > limit {
			del := s.b().Arbitrary("FT.CURSOR", "DEL").Args(q.IndexName, id).Build()
			if err := s.do(ctx, del).Error(); err != nil {
				return nil, &db.Error{Op: db.OpCursorDel, Err: err}
			}
			return out, nil
		}
		op = db.OpCursorRead
		cmd = s.b().Arbitrary("FT.CURSOR", "READ").Args(q.IndexName, id).Build()
	}
}

// SearchCount returns the number of documents matching the query's filters and
// text via FT.SEARCH with LIMIT 0 0. Pipeline steps are ignored.
func (s *Store) SearchCount(ctx context.Context, q *db.AggregateQuery) (int, error) {
	if q.IndexName == "" {
		return 0, fmt.Errorf("index name is required")
	}
	queryStr, err := buildQuery(q.Filters, q.Text, q.TextFields)
	if err != nil {
		return 0, err
	}

	cmd := s.b().Arbitrary("FT.SEARCH").
		Args(q.IndexName, queryStr, "LIMIT", "0", "0", "DIALECT", "2").
		Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpSearch, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func buildAggregateArgs(q *db.AggregateQuery) ([]string, error) {
	if q.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}
	args, err := buildPipelineArgs(q, q.Offset+q.Limit)
	if err != nil {
		return nil, err
	}
	return append(args,
		"LIMIT", strconv.Itoa(q.Offset), strconv.Itoa(q.Limit),
		"DIALECT", "2",
	), nil
}

// buildCursorArgs reads the whole pipeline q.Limit rows at a time; Offset and
// SORTBY MAX do not apply.
func buildCursorArgs(q *db.AggregateQuery) ([]string, error) {
	args, err := buildPipelineArgs(q, 0)
	if err != nil {
		return nil, err
	}
	return append(args,
		"WITHCURSOR", "COUNT", strconv.Itoa(q.Limit),
		"DIALECT", "2",
	), nil
}

// buildPipelineArgs renders the query and its steps. A positive sortMax caps
// the rows SORTBY keeps.
func buildPipelineArgs(q *db.AggregateQuery, sortMax int) ([]string, error) {
	if q.IndexName == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if q.Limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr, err := buildQuery(q.Filters, q.Text, q.TextFields)
	if err != nil {
		return nil, err
	}

	args := []string{q.IndexName, queryStr}
	if q.AddScores {
		args = append(args, "ADDSCORES")
	}

	if len(q.Load) > 0 {
		args = append(args, "LOAD", strconv.Itoa(len(q.Load)))
		args = append(args, fieldRefs(q.Load)...)
	}

	if len(q.GroupBy) > 0 {
		args = append(args, "GROUPBY", strconv.Itoa(len(q.GroupBy)))
		args = append(args, fieldRefs(q.GroupBy)...)
	}

	for _, a := range q.Apply {
		args = append(args, "APPLY", a.Expr, "AS", a.As)
	}

	if len(q.SortBy) > 0 {
		args = append(args, "SORTBY", strconv.Itoa(len(q.SortBy)*2))
		for _, f := range q.SortBy {
			dir := "ASC"
			if f.Desc {
				dir = "DESC"
			}
			args = append(args, "@"+f.Field, dir)
		}
		if sortMax > 0 {
			args = append(args, "MAX", strconv.Itoa(sortMax))
		}
	}

	return args, nil
}

func fieldRefs(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = "@" + f
	}
	return out
}

// --- Result parsing ---

func parseAggregateResult(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}

	entries := make([]db.SearchEntry, 0, len(raw)-1)
	// [total, [f1, v1, f2, v2, ...], ...]
	for i := 1; i < len(raw); i++ {
		fields, err := raw[i].ToArray()
		if err != nil {
			continue
		}

		entry := db.SearchEntry{Fields: parseFieldPairs(fields)}
		if scoreStr, ok := entry.Fields[db.ScoreField]; ok {
			if score, err := strconv.ParseFloat(scoreStr, 64); err == nil {
				entry.Score = score
			}
			delete(entry.Fields, db.ScoreField)
		}

		entries = append(entries, entry)
	}

	return &db.SearchResult{Total: int(total), Entries: entries}, nil
}

// parseCursorReply splits a WITHCURSOR reply: [[total, row...], cursor].
func parseCursorReply(raw []rueidis.RedisMessage) (*db.SearchResult, int64, error) {
	if len(raw) != 2 {
		return nil, 0, fmt.Errorf("parse cursor reply: expected 2 elements, got %d", len(raw))
	}
	rows, err := raw[0].ToArray()
	if err != nil {
		return nil, 0, fmt.Errorf("parse cursor rows: %w", err)
	}
	res, err := parseAggregateResult(rows)
	if err != nil {
		return nil, 0, err
	}
	cursor, err := raw[1].AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("parse cursor id: %w", err)
	}
	return res, cursor, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query building ---

// buildQuery combines the filter pre-query and the fuzzy text clause.
func buildQuery(expr filter.Expression, text string, textFields []string) (string, error) {
	filterStr, err := buildFilter(expr)
	if err != nil {
		return "", err
	}
	textPart := buildFuzzyText(text, textFields)

	switch {
	case filterStr != "" && textPart != "":
		return filterStr + " " + textPart, nil
	case filterStr != "":
		return filterStr, nil
	case textPart != "":
		return textPart, nil
	}
	return "*", nil
}

// buildFilter translates filter.Expression into an FT query string.
func buildFilter(expr filter.Expression) (string, error) {
	if expr.IsEmpty() {
		return "", nil
	}

	var parts []string

	for _, cond := range expr.Must() {
		c, err := buildCondition(cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}

	shouldParts, err := buildShouldGroup(expr.Should())
	if err != nil {
		return "", err
	}
	if shouldParts != "" {
		parts = append(parts, shouldParts)
	}

	for _, cond := range expr.MustNot() {
		c, err := buildCondition(cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, "-"+c)
	}

	return strings.Join(parts, " "), nil
}

func buildCondition(cond filter.Condition) (string, error) {
	switch {
	case cond.IsNested():
		return "", fmt.Errorf("%w: %s", errNestedUnresolved, cond.Key())
	case cond.IsMatch():
		return buildTagFilter(cond.Key(), cond.Values()), nil
	case cond.IsPrefix():
		return buildPrefixFilter(cond.Key(), cond.Prefix()), nil
	case cond.IsRange():
		return buildNumericFilter(cond.Key(), *cond.Range()), nil
	}
	return "", fmt.Errorf("empty condition for key %q", cond.Key())
}

func buildShouldGroup(conditions []filter.Condition) (string, error) {
	if len(conditions) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		c, err := buildCondition(cond)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	return "(" + strings.Join(parts, " | ") + ")", nil
}

func buildTagFilter(key string, values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = tagEscaper.Replace(v)
	}
	return fmt.Sprintf("@%s:{%s}", key, strings.Join(escaped, " | "))
}

func buildPrefixFilter(key, prefix string) string {
	return fmt.Sprintf("@%s:{%s*}", key, tagEscaper.Replace(prefix))
}

func buildNumericFilter(key string, r filter.Range) string {
	minBound := "-inf"
	maxBound := "+inf"

	if r.GT() != nil {
		minBound = fmt.Sprintf("(%s", formatNumber(*r.GT()))
	} else if r.GTE() != nil {
		minBound = formatNumber(*r.GTE())
	}

	if r.LT() != nil {
		maxBound = fmt.Sprintf("(%s", formatNumber(*r.LT()))
	} else if r.LTE() != nil {
		maxBound = formatNumber(*r.LTE())
	}

	return fmt.Sprintf("@%s:[%s %s]", key, minBound, maxBound)
}

// formatNumber avoids exponent notation, which unix timestamps would hit with %g.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// buildFuzzyText matches every term within Levenshtein distance 1 across fields.
func buildFuzzyText(text string, fields []string) string {
	terms := strings.Fields(text)
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		escaped := escapeQuery(t)
		if len([]rune(t)) > 3 {
			escaped = "%" + escaped + "%"
		}
		parts = append(parts, escaped)
	}
	clause := "(" + strings.Join(parts, " ") + ")"
	if len(fields) == 0 {
		return clause
	}
	return "@" + strings.Join(fields, "|") + ":" + clause
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	"|", "\\|",
	"/", "\\/",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`,`, `\,`,
	`.`, `\.`,
)
