package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
)

type mockIndexer struct {
	indexFn       func(ctx context.Context, c *content.Content) error
	indexGroupFn  func(ctx context.Context, g *content.Group) (int, error)
	equivalenceFn func(ctx context.Context, canonical content.ID, members []content.ID) (int, error)
}

func (m *mockIndexer) Index(ctx context.Context, c *content.Content) error {
	return m.indexFn(ctx, c)
}

func (m *mockIndexer) IndexGroup(ctx context.Context, g *content.Group) (int, error) {
	return m.indexGroupFn(ctx, g)
}

func (m *mockIndexer) AssignEquivalence(ctx context.Context, canonical content.ID, members []content.ID) (int, error) {
	return m.equivalenceFn(ctx, canonical, members)
}

// fakeMsg records how a message was settled.
type fakeMsg struct {
	jetstream.Msg
	subject string
	data    []byte
	headers natsgo.Header
	acked   int
	naked   int
	termed  int

	// settleErr is returned by Ack, Nak and Term.
	settleErr error
}

func (m *fakeMsg) Subject() string { return m.subject }
func (m *fakeMsg) Data() []byte { return m.data }
func (m *fakeMsg) Headers() natsgo.Header { return m.headers }
func (m *fakeMsg) Ack() error { m.acked++; return m.settleErr }
func (m *fakeMsg) Nak() error { m.naked++; return m.settleErr }
func (m *fakeMsg) Term() error { m.termed++; return m.settleErr }

func envelopeMsg(t *testing.T, subject string, env Envelope) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &fakeMsg{subject: subject, data: data}
}

func (m *fakeMsg) settled() string {
	return fmt.Sprintf("ack=%d nak=%d term=%d", m.acked, m.naked, m.termed)
}

func TestHandle_Content(t *testing.T) {
	var got *content.Content
	idx := &mockIndexer{indexFn: func(_ context.Context, c *content.Content) error {
		got = c
		return nil
	}}
	c := newConsumer(nil, idx, zap.NewNop())

	msg := envelopeMsg(t, SubjectContent, Envelope{
		Content: &content.Content{ID: 7, Kind: content.KindItem, Publisher: content.BBC, Title: "News"},
	})
	c.handle(context.Background(), msg)

	if msg.settled() != "ack=1 nak=0 term=0" {
		t.Fatalf("settled = %s", msg.settled())
	}
	if got == nil || got.ID != 7 || got.Title != "News" {
		t.Fatalf("indexed = %+v", got)
	}
}

func TestHandle_Group(t *testing.T) {
	var got *content.Group
	idx := &mockIndexer{indexGroupFn: func(_ context.Context, g *content.Group) (int, error) {
		got = g
		return 1, nil
	}}
	c := newConsumer(nil, idx, zap.NewNop())

	msg := envelopeMsg(t, SubjectGroup, Envelope{
		Group: &content.Group{ID: 3, Publisher: content.BBC, Members: []content.ID{1, 2}},
	})
	c.handle(context.Background(), msg)

	if msg.acked != 1 {
		t.Fatalf("settled = %s", msg.settled())
	}
	if got == nil || len(got.Members) != 2 {
		t.Fatalf("group = %+v", got)
	}
}

func TestHandle_Equivalence(t *testing.T) {
	var canonical content.ID
	var members []content.ID
	idx := &mockIndexer{equivalenceFn: func(_ context.Context, c content.ID, m []content.ID) (int, error) {
		canonical, members = c, m
		return 0, nil
	}}
	c := newConsumer(nil, idx, zap.NewNop())

	msg := envelopeMsg(t, SubjectEquivalence, Envelope{
		Equivalence: &EquivalencePayload{Canonical: 1, Members: []content.ID{2, 3}},
	})
	c.handle(context.Background(), msg)

	if msg.acked != 1 {
		t.Fatalf("settled = %s", msg.settled())
	}
	if canonical != 1 || len(members) != 2 {
		t.Fatalf("assign(%d, %v)", canonical, members)
	}
}

func TestHandle_CustomStream(t *testing.T) {
	called := false
	idx := &mockIndexer{indexFn: func(context.Context, *content.Content) error {
		called = true
		return nil
	}}
	c := newConsumer(nil, idx, zap.NewNop(), WithStream("STAGING"))

	msg := envelopeMsg(t, "STAGING.content", Envelope{
		Content: &content.Content{ID: 1, Kind: content.KindItem, Publisher: content.BBC},
	})
	c.handle(context.Background(), msg)

	if !called || msg.acked != 1 {
		t.Fatalf("called=%v settled = %s", called, msg.settled())
	}
}

func TestHandle_Settlement(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    []byte
		err     error
		want    string
	}{
		{"malformed json", SubjectContent, []byte("{"), nil, "ack=0 nak=0 term=1"},
		{"missing payload", SubjectContent, []byte(`{"id":"x"}`), nil, "ack=0 nak=0 term=1"},
		{"unknown subject", "CONTENT.other", []byte(`{}`), nil, "ack=0 nak=0 term=1"},
		{"invalid content", SubjectContent, []byte(`{"content":{"id":1}}`), domain.ErrInvalidContent, "ack=0 nak=0 term=1"},
		{"storage failure", SubjectContent, []byte(`{"content":{"id":1}}`), errors.New("redis down"), "ack=0 nak=1 term=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := &mockIndexer{indexFn: func(context.Context, *content.Content) error {
				return tt.err
			}}
			c := newConsumer(nil, idx, zap.NewNop())
			msg := &fakeMsg{subject: tt.subject, data: tt.data}

			c.handle(context.Background(), msg)

			if msg.settled() != tt.want {
				t.Errorf("settled = %s, want %s", msg.settled(), tt.want)
			}
		})
	}
}

func TestHandle_LogsSettlementFailure(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
		want string
	}{
		{"ack", []byte(`{"content":{"id":1}}`), nil, "ack failed"},
		{"term malformed", []byte("{"), nil, "term failed"},
		{"term rejected", []byte(`{"content":{"id":1}}`), domain.ErrInvalidContent, "term failed"},
		{"nak", []byte(`{"content":{"id":1}}`), errors.New("redis down"), "nak failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			idx := &mockIndexer{indexFn: func(context.Context, *content.Content) error {
				return tt.err
			}}
			c := newConsumer(nil, idx, zap.New(core))
			msg := &fakeMsg{subject: SubjectContent, data: tt.data, settleErr: natsgo.ErrConnectionClosed}

			c.handle(context.Background(), msg)

			entries := logs.FilterMessage(tt.want).All()
			if len(entries) != 1 {
				t.Fatalf("expected one %q entry, got %d", tt.want, len(entries))
			}
			if got := entries[0].ContextMap()["error"]; got != natsgo.ErrConnectionClosed.Error() {
				t.Errorf("error field = %v", got)
			}
		})
	}
}

func TestMessageID(t *testing.T) {
	withHeader := &fakeMsg{headers: natsgo.Header{jetstream.MsgIDHeader: []string{"abc"}}}
	if got := messageID(withHeader); got != "abc" {
		t.Errorf("messageID = %q, want abc", got)
	}

	a, b := messageID(&fakeMsg{}), messageID(&fakeMsg{})
	if a == "" || a == b {
		t.Errorf("generated ids %q, %q should be distinct and non-empty", a, b)
	}
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveMessage(subject, outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, subject+"="+outcome)
}

func TestHandle_ObservesOutcome(t *testing.T) {
	obs := &recordingObserver{}
	idx := &mockIndexer{indexFn: func(context.Context, *content.Content) error { return errors.New("down") }}
	c := newConsumer(nil, idx, zap.NewNop(), WithObserver(obs))

	c.handle(context.Background(), &fakeMsg{subject: SubjectContent, data: []byte(`{"content":{"id":1}}`)})
	c.handle(context.Background(), &fakeMsg{subject: "OTHER.content", data: []byte(`{}`)})

	want := []string{SubjectContent + "=" + OutcomeNak, "unknown=" + OutcomeTerm}
	if len(obs.outcomes) != len(want) {
		t.Fatalf("outcomes = %v, want %v", obs.outcomes, want)
	}
	for i := range want {
		if obs.outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %q, want %q", i, obs.outcomes[i], want[i])
		}
	}
}
