package result

import (
	"testing"

	"github.com/atlasmeta/contentdex/internal/domain/content"
)

func TestNewRawHit(t *testing.T) {
	h := NewRawHit(20, 1.5, content.MetaBroadcast)
	if h.ID() != 20 {
		t.Errorf("ID() = %d", h.ID())
	}
	if h.Score() != 1.5 {
		t.Errorf("Score() = %f", h.Score())
	}
	if h.Publisher() != content.MetaBroadcast {
		t.Errorf("Publisher() = %q", h.Publisher())
	}
}

func TestBuilder_CollapsesPreservingFirstSeen(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 10)
	b.Add(2, 20)
	b.Add(1, 11)
	b.Add(3, 30)
	b.Add(1, 12)

	r := b.Build(0, 10, 5, false)

	want := []content.ID{1, 2, 3}
	if len(r.IDs()) != len(want) {
		t.Fatalf("IDs() = %v, want %v", r.IDs(), want)
	}
	for i, id := range want {
		if r.IDs()[i] != id {
			t.Errorf("IDs()[%d] = %d, want %d", i, r.IDs()[i], id)
		}
	}
	members := r.Members(1)
	if len(members) != 3 || members[0] != 10 || members[1] != 11 || members[2] != 12 {
		t.Errorf("Members(1) = %v, want [10 11 12]", members)
	}
}

func TestBuilder_DuplicateRawIgnored(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 10)
	b.Add(1, 10)
	if b.Raw() != 1 || b.Len() != 1 {
		t.Fatalf("Raw()=%d Len()=%d, want 1 1", b.Raw(), b.Len())
	}
	if got := b.Build(0, 10, 1, false).Members(1); len(got) != 1 {
		t.Errorf("Members(1) = %v", got)
	}
}

func TestBuilder_PaginatesCanonicalSequence(t *testing.T) {
	b := NewBuilder()
	for i := content.ID(1); i <= 6; i++ {
		b.Add(i, i)
	}

	r := b.Build(2, 2, 6, false)
	if len(r.IDs()) != 2 || r.IDs()[0] != 3 || r.IDs()[1] != 4 {
		t.Fatalf("IDs() = %v, want [3 4]", r.IDs())
	}
	if r.Members(1) != nil {
		t.Error("groups outside the page must not be returned")
	}
}

func TestBuilder_OffsetPastEnd(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 1)
	r := b.Build(5, 10, 1, false)
	if len(r.IDs()) != 0 {
		t.Errorf("IDs() = %v, want empty", r.IDs())
	}
	if r.Total() != 1 {
		t.Errorf("Total() = %d, want 1", r.Total())
	}
}

func TestBuilder_TotalNeverBelowDistinct(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 1)
	b.Add(2, 2)
	b.Add(3, 3)
	r := b.Build(0, 10, 1, true)
	if r.Total() < len(r.IDs()) {
		t.Errorf("Total() = %d < len(IDs()) = %d", r.Total(), len(r.IDs()))
	}
	if !r.Incomplete() {
		t.Error("Incomplete() = false")
	}
}

func TestBuilder_SnapshotIsolated(t *testing.T) {
	b := NewBuilder()
	b.Add(1, 10)
	r := b.Build(0, 10, 1, false)
	b.Add(1, 11)
	if got := r.Members(1); len(got) != 1 {
		t.Errorf("published result changed after Add: %v", got)
	}
}

func TestFromPage(t *testing.T) {
	p := &Page{
		Hits: []RawHit{
			NewRawHit(5, 0, content.BBC),
			NewRawHit(6, 0, content.BBC),
			NewRawHit(7, 0, content.BBC),
		},
		Total: 9,
	}
	r := FromPage(p, 0, 2)
	if len(r.IDs()) != 2 || r.IDs()[0] != 5 {
		t.Fatalf("IDs() = %v", r.IDs())
	}
	if got := r.Members(6); len(got) != 1 || got[0] != 6 {
		t.Errorf("Members(6) = %v", got)
	}
	if r.Total() != 9 {
		t.Errorf("Total() = %d", r.Total())
	}
}

func TestEmpty(t *testing.T) {
	r := Empty(0)
	if len(r.IDs()) != 0 || r.Total() != 0 || r.Groups() == nil {
		t.Errorf("unexpected empty result %+v", r)
	}
}
