package content

import "fmt"

// Kind is the content subtype tag.
type Kind string

// Content kinds. Items, episodes and films index as item documents,
// series and brands as container documents.
const (
	KindItem    Kind = "item"
	KindEpisode Kind = "episode"
	KindFilm    Kind = "film"
	KindSeries  Kind = "series"
	KindBrand   Kind = "brand"
)

// ParseKind resolves a kind tag, rejecting unknown ones.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown content kind %q", s)
	}
	return k, nil
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindItem, KindEpisode, KindFilm, KindSeries, KindBrand:
		return true
	}
	return false
}

// IsContainer reports whether k indexes as a container document.
func (k Kind) IsContainer() bool {
	return k == KindSeries || k == KindBrand
}

// UnmarshalText rejects unknown kinds at decode time.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("unknown content kind %q", string(k))
	}
	return []byte(k), nil
}
