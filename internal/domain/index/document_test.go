package index

import (
	"testing"
	"time"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

func TestDocument_DocType(t *testing.T) {
	tests := []struct {
		kind content.Kind
		want string
	}{
		{content.KindItem, DocItem},
		{content.KindEpisode, DocItem},
		{content.KindFilm, DocItem},
		{content.KindSeries, DocContainer},
		{content.KindBrand, DocContainer},
	}
	for _, tt := range tests {
		d := Document{Kind: tt.kind}
		if got := d.DocType(); got != tt.want {
			t.Errorf("DocType(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDocument_TransmissionTime_IgnoresInactive(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	d := Document{Broadcasts: []Broadcast{
		{Channel: "bbcone", Start: t0.Add(-time.Hour), Active: false},
		{Channel: "bbcone", Start: t0.Add(time.Hour), Active: true},
		{Channel: "bbctwo", Start: t0, Active: true},
	}}
	got, ok := d.TransmissionTime()
	if !ok || !got.Equal(t0) {
		t.Errorf("TransmissionTime() = %v, %v; want %v", got, ok, t0)
	}

	empty := Document{}
	if _, ok := empty.TransmissionTime(); ok {
		t.Error("expected no transmission time without broadcasts")
	}
}

func TestDocument_Field_MissingOptional(t *testing.T) {
	d := Document{ID: 20, Kind: content.KindItem, Publisher: content.MetaBroadcast, Active: true}

	for _, name := range []string{FieldYear, FieldTitleSort, FieldContainer, FieldCanonical, FieldTransmissionTime, FieldGroups} {
		if _, ok := d.Field(name); ok {
			t.Errorf("Field(%q) present on empty document", name)
		}
	}

	v, ok := d.Field(FieldActive)
	if !ok || len(v.Tags) != 1 || v.Tags[0] != "true" {
		t.Errorf("Field(active) = %+v, %v", v, ok)
	}
	v, ok = d.Field(FieldID)
	if !ok || !v.IsNum || v.Num != 20 {
		t.Errorf("Field(id) = %+v, %v", v, ok)
	}
}

func TestDocument_Field_Values(t *testing.T) {
	year := 1999
	d := Document{
		ID:        7,
		Kind:      content.KindEpisode,
		Publisher: content.BBC,
		Title:     "  The  Office ",
		Year:      &year,
		Container: content.Ref(3),
		Groups:    []content.ID{11, 12},
	}

	if v, _ := d.Field(FieldTitleSort); v.Tags[0] != "the office" {
		t.Errorf("title_sort = %q", v.Tags[0])
	}
	if v, _ := d.Field(FieldYear); v.Num != 1999 {
		t.Errorf("year = %v", v.Num)
	}
	if v, _ := d.Field(FieldContainer); v.Tags[0] != "3" {
		t.Errorf("container = %v", v.Tags)
	}
	if v, _ := d.Field(FieldGroups); len(v.Tags) != 2 || v.Tags[1] != "12" {
		t.Errorf("groups = %v", v.Tags)
	}
	if _, ok := d.Field("nope"); ok {
		t.Error("unknown field reported present")
	}
}

func TestDocument_Elements(t *testing.T) {
	d := Document{
		Broadcasts: []Broadcast{{Channel: "a"}, {Channel: "b"}},
		Topics:     []Topic{{Topic: 1, Weighting: 0.5}},
	}
	if got := len(d.Elements(ScopeBroadcasts)); got != 2 {
		t.Errorf("broadcast elements = %d", got)
	}
	if got := len(d.Elements(ScopeLocations)); got != 0 {
		t.Errorf("location elements = %d", got)
	}
	topics := d.Elements(ScopeTopics)
	if v, ok := topics[0](FieldWeighting); !ok || v.Num != 0.5 {
		t.Errorf("topic weighting = %+v", v)
	}
}

func TestSortBroadcasts(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bs := []Broadcast{
		{Channel: "c", Start: t0.Add(2 * time.Hour), Owner: 1},
		{Channel: "b", Start: t0, Owner: 2},
		{Channel: "a", Start: t0, Owner: 2},
		{Channel: "a", Start: t0, Owner: 1},
	}
	SortBroadcasts(bs)

	want := []struct {
		channel string
		owner   content.ID
	}{{"a", 1}, {"a", 2}, {"b", 2}, {"c", 1}}
	for i, w := range want {
		if bs[i].Channel != w.channel || bs[i].Owner != w.owner {
			t.Errorf("bs[%d] = %s/%d, want %s/%d", i, bs[i].Channel, bs[i].Owner, w.channel, w.owner)
		}
	}
}

func TestLookup(t *testing.T) {
	if f, ok := Lookup("", FieldYear); !ok || f.Type != Numeric || !f.Sortable {
		t.Errorf("Lookup(year) = %+v, %v", f, ok)
	}
	if f, ok := Lookup(ScopeBroadcasts, FieldChannel); !ok || f.Type != Tag {
		t.Errorf("Lookup(broadcasts.channel) = %+v, %v", f, ok)
	}
	if _, ok := Lookup(ScopeTopics, FieldChannel); ok {
		t.Error("channel must not exist in topics scope")
	}
}
