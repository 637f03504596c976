package content

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one content record of one publisher.
type ID int64

// String returns the decimal form used as index key suffix and tag value.
func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseID parses a decimal content id.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid content id %q: must be positive", s)
	}
	return ID(v), nil
}

// ParseIDs parses a comma-separated id list. Empty input yields nil.
func ParseIDs(s string) ([]ID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]ID, 0, len(parts))
	for _, p := range parts {
		id, err := ParseID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Strings renders ids in their decimal form, preserving order.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
