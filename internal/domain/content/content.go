package content

import (
	"errors"
	"fmt"
	"time"
)

// Specialization values.
const (
	SpecializationTV    = "tv"
	SpecializationRadio = "radio"
	SpecializationFilm  = "film"
	SpecializationMusic = "music"
)

// Media types.
const (
	MediaVideo = "video"
	MediaAudio = "audio"
)

// Content is a publisher's record of an item, episode, film, series or brand.
type Content struct {
	ID                ID        `json:"id"`
	Kind              Kind      `json:"type"`
	Publisher         Publisher `json:"publisher"`
	Title             string    `json:"title,omitempty"`
	Description       string    `json:"description,omitempty"`
	Genres            []string  `json:"genres,omitempty"`
	Specialization    string    `json:"specialization,omitempty"`
	MediaType         string    `json:"mediaType,omitempty"`
	Year              int       `json:"year,omitempty"`
	ActivelyPublished bool      `json:"activelyPublished"`

	// Container is the brand of an item, episode or series.
	Container *ID `json:"container,omitempty"`
	// Series is the series of an episode.
	Series        *ID `json:"series,omitempty"`
	EpisodeNumber int `json:"episodeNumber,omitempty"`
	SeriesNumber  int `json:"seriesNumber,omitempty"`

	Broadcasts []Broadcast `json:"broadcasts,omitempty"`
	Encodings  []Encoding  `json:"encodings,omitempty"`
	Topics     []TopicRef  `json:"topics,omitempty"`
}

// Broadcast is one transmission of an item on a channel.
type Broadcast struct {
	SourceID          string    `json:"sourceId,omitempty"`
	ChannelID         string    `json:"channel"`
	TransmissionStart time.Time `json:"transmissionTime"`
	TransmissionEnd   time.Time `json:"transmissionEndTime"`
	ActivelyPublished bool      `json:"activelyPublished"`
}

// Encoding groups the locations that serve one rendition of an item.
type Encoding struct {
	HighDefinition bool       `json:"highDefinition,omitempty"`
	Locations      []Location `json:"locations,omitempty"`
}

// Location is a place an item can be consumed from.
type Location struct {
	URI               string     `json:"uri,omitempty"`
	Available         bool       `json:"available"`
	AvailabilityStart *time.Time `json:"availabilityStart,omitempty"`
	AvailabilityEnd   *time.Time `json:"availabilityEnd,omitempty"`
	Platform          string     `json:"platform,omitempty"`
	TransportType     string     `json:"transportType,omitempty"`
}

// TopicRef links content to a topic with a relevance weighting.
type TopicRef struct {
	TopicID      ID      `json:"topic"`
	Weighting    float64 `json:"weighting"`
	Supervised   bool    `json:"supervised,omitempty"`
	Relationship string  `json:"relationship,omitempty"`
}

// New creates content of the given kind, rejecting unknown kinds and publishers.
func New(id ID, kind Kind, publisher Publisher) (*Content, error) {
	c := &Content{ID: id, Kind: kind, Publisher: publisher, ActivelyPublished: true}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the invariants every indexable record must satisfy.
func (c *Content) Validate() error {
	if c == nil {
		return errors.New("content is nil")
	}
	if c.ID <= 0 {
		return fmt.Errorf("content id must be positive, got %d", c.ID)
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("unknown content kind %q", string(c.Kind))
	}
	if !c.Publisher.IsValid() {
		return fmt.Errorf("unknown publisher %q", string(c.Publisher))
	}
	switch c.Kind {
	case KindBrand:
		if c.Container != nil || c.Series != nil {
			return fmt.Errorf("brand %d cannot have a container or series", c.ID)
		}
	case KindSeries:
		if c.Series != nil {
			return fmt.Errorf("series %d cannot have a series ref", c.ID)
		}
	case KindItem, KindFilm:
		if c.Series != nil {
			return fmt.Errorf("%s %d cannot have a series ref", c.Kind, c.ID)
		}
	case KindEpisode:
	}
	for i, b := range c.Broadcasts {
		if b.ChannelID == "" {
			return fmt.Errorf("broadcast %d of %d has no channel", i, c.ID)
		}
		if !b.TransmissionEnd.IsZero() && b.TransmissionEnd.Before(b.TransmissionStart) {
			return fmt.Errorf("broadcast %d of %d ends before it starts", i, c.ID)
		}
	}
	return nil
}

// Parent returns the container an episode's broadcasts are denormalized onto:
// its series when set, otherwise its brand.
func (c *Content) Parent() (ID, bool) {
	if c.Series != nil {
		return *c.Series, true
	}
	if c.Container != nil {
		return *c.Container, true
	}
	return 0, false
}

// Ref returns a pointer to id, for building container refs.
func Ref(id ID) *ID { return &id }
