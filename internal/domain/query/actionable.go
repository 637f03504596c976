package query

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/index"
	"github.com/atlasmeta/contentdex/internal/domain/search/filter"
)

// Actionable filter keys.
const (
	ActionableLocationAvailable   = "location.available"
	ActionableLocationAvailableAt = "location.available.at"
	ActionableBroadcastAfter      = "broadcast.time.gt"
	ActionableBroadcastBefore     = "broadcast.time.lt"
	ActionableBroadcastChannel    = "broadcast.channel"
)

// Actionable selects content a user could act on: watch now, or catch on a
// broadcast in a time window. Each side must be satisfied by a single
// location or broadcast; when both sides are set either one suffices.
type Actionable struct {
	LocationAvailable *bool
	AvailableAt       *time.Time
	BroadcastAfter    *time.Time
	BroadcastBefore   *time.Time
	BroadcastChannels []string
}

// ParseActionable parses the actionable filter map. Time values accept
// RFC 3339, unix seconds, "now", or "now" followed by a signed Go duration
// ("now-24h"). Unknown keys are an ErrInvalidQuery.
func ParseActionable(m map[string]string, now time.Time) (Actionable, error) {
	var a Actionable
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		v := strings.TrimSpace(m[k])
		element := "actionable." + k
		switch k {
		case ActionableLocationAvailable:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return Actionable{}, domain.NewQueryError(element, "not a boolean")
			}
			a.LocationAvailable = &b
		case ActionableLocationAvailableAt, ActionableBroadcastAfter, ActionableBroadcastBefore:
			t, err := parseInstant(v, now)
			if err != nil {
				return Actionable{}, domain.NewQueryError(element, err.Error())
			}
			switch k {
			case ActionableLocationAvailableAt:
				a.AvailableAt = &t
			case ActionableBroadcastAfter:
				a.BroadcastAfter = &t
			default:
				a.BroadcastBefore = &t
			}
		case ActionableBroadcastChannel:
			for _, ch := range strings.Split(v, ",") {
				if ch = strings.TrimSpace(ch); ch != "" {
					a.BroadcastChannels = append(a.BroadcastChannels, ch)
				}
			}
			if len(a.BroadcastChannels) == 0 {
				return Actionable{}, domain.NewQueryError(element, "empty channel list")
			}
		default:
			return Actionable{}, domain.NewQueryError(element, "unknown actionable filter")
		}
	}

	if a.BroadcastAfter != nil && a.BroadcastBefore != nil && !a.BroadcastAfter.Before(*a.BroadcastBefore) {
		return Actionable{}, domain.NewQueryError("actionable.broadcast.time", "empty time window")
	}
	return a, nil
}

func parseInstant(v string, now time.Time) (time.Time, error) {
	if rest, ok := strings.CutPrefix(v, "now"); ok {
		if rest == "" {
			return now.UTC(), nil
		}
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d).UTC(), nil
	}
	return ParseTime(v)
}

// IsEmpty reports whether no actionable filter is set.
func (a Actionable) IsEmpty() bool {
	return !a.hasLocation() && !a.hasBroadcast()
}

func (a Actionable) hasLocation() bool {
	return a.LocationAvailable != nil || a.AvailableAt != nil
}

func (a Actionable) hasBroadcast() bool {
	return a.BroadcastAfter != nil || a.BroadcastBefore != nil || len(a.BroadcastChannels) > 0
}

// Clauses returns one nested clause per populated side: locations first,
// then broadcasts. Two clauses are alternatives.
func (a Actionable) Clauses() ([]filter.Condition, error) {
	var out []filter.Condition

	if a.hasLocation() {
		var conds []filter.Condition
		available := a.LocationAvailable == nil || *a.LocationAvailable
		if a.AvailableAt != nil {
			available = true
		}
		c, err := filter.NewMatch(index.FieldAvailable, strconv.FormatBool(available))
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
		if a.AvailableAt != nil {
			at := float64(a.AvailableAt.Unix())
			from, err := rangeCondition(index.FieldStart, nil, nil, nil, &at)
			if err != nil {
				return nil, err
			}
			until, err := rangeCondition(index.FieldEnd, &at, nil, nil, nil)
			if err != nil {
				return nil, err
			}
			conds = append(conds, from, until)
		}
		nested, err := nestedScope(index.ScopeLocations, conds)
		if err != nil {
			return nil, err
		}
		out = append(out, nested)
	}

	if a.hasBroadcast() {
		active, err := filter.NewMatch(index.FieldActive, "true")
		if err != nil {
			return nil, err
		}
		conds := []filter.Condition{active}
		if len(a.BroadcastChannels) > 0 {
			c, err := filter.NewMatchAny(index.FieldChannel, a.BroadcastChannels...)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if a.BroadcastAfter != nil || a.BroadcastBefore != nil {
			var gt, lt *float64
			if a.BroadcastAfter != nil {
				v := float64(a.BroadcastAfter.Unix())
				gt = &v
			}
			if a.BroadcastBefore != nil {
				v := float64(a.BroadcastBefore.Unix())
				lt = &v
			}
			c, err := rangeCondition(index.FieldStart, gt, nil, lt, nil)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		nested, err := nestedScope(index.ScopeBroadcasts, conds)
		if err != nil {
			return nil, err
		}
		out = append(out, nested)
	}

	return out, nil
}

func nestedScope(scope string, conds []filter.Condition) (filter.Condition, error) {
	inner, err := filter.NewExpression(conds, nil, nil)
	if err != nil {
		return filter.Condition{}, err
	}
	return filter.NewNested(scope, inner)
}
