package content

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	c, err := New(1, KindEpisode, BBC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.ActivelyPublished {
		t.Error("new content should be actively published")
	}
}

func TestValidate_Rejects(t *testing.T) {
	start := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		c    Content
	}{
		{"zero id", Content{Kind: KindItem, Publisher: BBC}},
		{"unknown kind", Content{ID: 1, Kind: "clip", Publisher: BBC}},
		{"unknown publisher", Content{ID: 1, Kind: KindItem, Publisher: "example.com"}},
		{"brand with container", Content{ID: 1, Kind: KindBrand, Publisher: BBC, Container: Ref(2)}},
		{"series with series", Content{ID: 1, Kind: KindSeries, Publisher: BBC, Series: Ref(2)}},
		{"film with series", Content{ID: 1, Kind: KindFilm, Publisher: BBC, Series: Ref(2)}},
		{"broadcast without channel", Content{ID: 1, Kind: KindItem, Publisher: BBC,
			Broadcasts: []Broadcast{{TransmissionStart: start}}}},
		{"broadcast ends before start", Content{ID: 1, Kind: KindItem, Publisher: BBC,
			Broadcasts: []Broadcast{{ChannelID: "bbcone", TransmissionStart: start, TransmissionEnd: start.Add(-time.Hour)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParent(t *testing.T) {
	ep := Content{ID: 3, Kind: KindEpisode, Publisher: BBC, Container: Ref(1), Series: Ref(2)}
	if p, ok := ep.Parent(); !ok || p != 2 {
		t.Errorf("Parent() = %d, %v; want series 2", p, ok)
	}

	ep.Series = nil
	if p, ok := ep.Parent(); !ok || p != 1 {
		t.Errorf("Parent() = %d, %v; want container 1", p, ok)
	}

	ep.Container = nil
	if _, ok := ep.Parent(); ok {
		t.Error("orphan episode should have no parent")
	}
}

func TestKind_JSON(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"id":1,"type":"series","publisher":"bbc.co.uk"}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Kind != KindSeries || !c.Kind.IsContainer() {
		t.Errorf("kind = %q", c.Kind)
	}

	if err := json.Unmarshal([]byte(`{"id":1,"type":"clip","publisher":"bbc.co.uk"}`), &c); err == nil {
		t.Error("expected error for unknown kind")
	}
	if err := json.Unmarshal([]byte(`{"id":1,"type":"item","publisher":"example.com"}`), &c); err == nil {
		t.Error("expected error for unknown publisher")
	}
}

func TestParsePublishers(t *testing.T) {
	got, err := ParsePublishers(" PressAssociation.com,bbc.co.uk,pressassociation.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(got, []Publisher{PA, BBC}) {
		t.Errorf("got %v, want [PA BBC]", got)
	}

	if _, err := ParsePublishers("bbc.co.uk,nope"); err == nil {
		t.Error("expected error for unknown publisher")
	}
	if got, _ := ParsePublishers(""); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}
}

func TestPrecedence(t *testing.T) {
	list := []Publisher{PA, BBC}
	if Precedence(list, PA) != 0 || Precedence(list, BBC) != 1 {
		t.Error("listed publishers should rank by position")
	}
	if Precedence(list, ITV) != len(list) {
		t.Error("unlisted publisher should rank last")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs("3, 1,2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(ids, []ID{3, 1, 2}) {
		t.Errorf("ids = %v", ids)
	}
	if !slices.Equal(Strings(ids), []string{"3", "1", "2"}) {
		t.Errorf("Strings = %v", Strings(ids))
	}

	for _, bad := range []string{"0", "-4", "x", "1,,2"} {
		if _, err := ParseIDs(bad); err == nil {
			t.Errorf("ParseIDs(%q): expected error", bad)
		}
	}
}

func TestGroup_Validate(t *testing.T) {
	if err := (&Group{ID: 1, Publisher: BBC, Members: []ID{2, 3}}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (&Group{ID: 1, Publisher: BBC, Members: []ID{0}}).Validate(); err == nil {
		t.Error("expected error for invalid member")
	}
	if err := (&Group{ID: 1, Publisher: "x"}).Validate(); err == nil {
		t.Error("expected error for unknown publisher")
	}
}
