package indexer

import (
	"fmt"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/domain/index"
)

type factKey struct {
	channel string
	start   int64
}

// Denormalize returns the broadcast facts of the episode's parent after the
// episode changed. Facts owned by the episode are replaced by its current
// actively-published broadcasts; facts owned by other episodes are kept as
// they are. The result is sorted by transmission start and never aliases
// existing.
func Denormalize(episode *content.Content, existing []index.Broadcast) ([]index.Broadcast, error) {
	if episode == nil {
		return nil, fmt.Errorf("%w: episode is nil", domain.ErrInvalidContent)
	}
	if episode.Kind != content.KindEpisode {
		return nil, fmt.Errorf("%w: %d is a %s, not an episode", domain.ErrInvalidContent, episode.ID, episode.Kind)
	}
	if _, ok := episode.Parent(); !ok {
		return nil, fmt.Errorf("%w: episode %d has no series or container", domain.ErrInvalidContent, episode.ID)
	}

	out := make([]index.Broadcast, 0, len(existing)+len(episode.Broadcasts))
	for _, f := range existing {
		if f.Owner != episode.ID {
			out = append(out, f)
		}
	}

	if episode.ActivelyPublished {
		seen := make(map[factKey]bool, len(episode.Broadcasts))
		for _, b := range episode.Broadcasts {
			if !b.ActivelyPublished {
				continue
			}
			k := factKey{channel: b.ChannelID, start: b.TransmissionStart.UnixNano()}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, fact(episode.ID, b))
		}
	}

	index.SortBroadcasts(out)
	return out, nil
}

func fact(owner content.ID, b content.Broadcast) index.Broadcast {
	return index.Broadcast{
		Channel: b.ChannelID,
		Start:   b.TransmissionStart.UTC(),
		End:     b.TransmissionEnd.UTC(),
		Owner:   owner,
		Active:  true,
	}
}

func sameFacts(a, b []index.Broadcast) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if index.CompareBroadcasts(a[i], b[i]) != 0 || a[i].Active != b[i].Active {
			return false
		}
	}
	return true
}
