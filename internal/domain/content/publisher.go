package content

import (
	"fmt"
	"strings"
)

// Publisher is the source tag of a content record.
type Publisher string

// Known publishers.
const (
	BBC           Publisher = "bbc.co.uk"
	MetaBroadcast Publisher = "metabroadcast.com"
	PA            Publisher = "pressassociation.com"
	C4            Publisher = "channel4.com"
	ITV           Publisher = "itv.com"
	Five          Publisher = "five.tv"
	YouView       Publisher = "youview.com"
	AmazonUnbox   Publisher = "amazon.com"
	Netflix       Publisher = "netflix.com"
)

var publishers = map[Publisher]struct{}{
	BBC: {}, MetaBroadcast: {}, PA: {}, C4: {}, ITV: {},
	Five: {}, YouView: {}, AmazonUnbox: {}, Netflix: {},
}

// ParsePublisher resolves a publisher key. Unknown keys are rejected.
func ParsePublisher(key string) (Publisher, error) {
	p := Publisher(strings.ToLower(strings.TrimSpace(key)))
	if _, ok := publishers[p]; !ok {
		return "", fmt.Errorf("unknown publisher %q", key)
	}
	return p, nil
}

// ParsePublishers parses a comma-separated publisher list, keeping caller order
// (it defines precedence) and dropping repeats.
func ParsePublishers(s string) ([]Publisher, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := make(map[Publisher]bool)
	var out []Publisher
	for _, part := range strings.Split(s, ",") {
		p, err := ParsePublisher(part)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// IsValid reports whether p is a known publisher.
func (p Publisher) IsValid() bool {
	_, ok := publishers[p]
	return ok
}

// Key returns the publisher key.
func (p Publisher) Key() string { return string(p) }

// Precedence returns the rank of p within an ordered publisher list (0 is highest).
// Publishers absent from the list rank after every listed one.
func Precedence(list []Publisher, p Publisher) int {
	for i, q := range list {
		if q == p {
			return i
		}
	}
	return len(list)
}

// UnmarshalText rejects unknown publishers at decode time.
func (p *Publisher) UnmarshalText(b []byte) error {
	parsed, err := ParsePublisher(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
