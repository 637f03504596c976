package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/atlasmeta/contentdex/internal/domain"
	"github.com/atlasmeta/contentdex/internal/domain/content"
	"github.com/atlasmeta/contentdex/internal/logger"
)

const defaultHandleTimeout = 30 * time.Second

// Indexer applies ingestion events to the index.
type Indexer interface {
	Index(ctx context.Context, c *content.Content) error
	IndexGroup(ctx context.Context, g *content.Group) (int, error)
	AssignEquivalence(ctx context.Context, canonical content.ID, members []content.ID) (int, error)
}

// Observer receives the settlement of every message.
type Observer interface {
	ObserveMessage(subject, outcome string, d time.Duration)
}

// Message outcomes.
const (
	OutcomeAck  = "ack"
	OutcomeNak  = "nak"
	OutcomeTerm = "term"
)

type nopObserver struct{}

func (nopObserver) ObserveMessage(string, string, time.Duration) {}

// Consumer reads ingestion events from a JetStream stream and hands them to
// an Indexer. Every message is acked explicitly; failures are nak'ed for
// redelivery, malformed or invalid payloads are terminated.
type Consumer struct {
	js            jetstream.JetStream
	indexer       Indexer
	log           *zap.Logger
	obs           Observer
	stream        string
	durable       string
	handleTimeout time.Duration
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithStream overrides the stream name.
func WithStream(name string) ConsumerOption {
	return func(c *Consumer) {
		if name != "" {
			c.stream = name
		}
	}
}

// WithDurable overrides the durable consumer name.
func WithDurable(name string) ConsumerOption {
	return func(c *Consumer) {
		if name != "" {
			c.durable = name
		}
	}
}

// WithHandleTimeout bounds the time spent indexing one message.
func WithHandleTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.handleTimeout = d
		}
	}
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) ConsumerOption {
	return func(c *Consumer) {
		if o != nil {
			c.obs = o
		}
	}
}

// NewConsumer creates a consumer on the JetStream context of nc.
func NewConsumer(nc *natsgo.Conn, indexer Indexer, log *zap.Logger, opts ...ConsumerOption) (*Consumer, error) {
	if nc == nil {
		return nil, errors.New("nats connection cannot be nil")
	}
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return newConsumer(js, indexer, log, opts...), nil
}

func newConsumer(js jetstream.JetStream, indexer Indexer, log *zap.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		js:            js,
		indexer:       indexer,
		log:           log,
		obs:           nopObserver{},
		stream:        DefaultStream,
		durable:       DefaultConsumer,
		handleTimeout: defaultHandleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start ensures the stream and durable consumer exist, then consumes until
// ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      c.stream,
		Subjects:  []string{c.stream + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("ensure stream %s: %w", c.stream, err)
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, c.stream, jetstream.ConsumerConfig{
		Durable:       c.durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		FilterSubject: c.stream + ".>",
	})
	if err != nil {
		return fmt.Errorf("ensure consumer %s: %w", c.durable, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.stream, err)
	}
	defer cc.Stop()

	c.log.Info("ingestion consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer", c.durable),
	)
	<-ctx.Done()
	c.log.Info("ingestion consumer stopping", zap.String("stream", c.stream))
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	start := time.Now()
	kind := c.kind(msg.Subject())
	outcome := c.settle(ctx, msg, kind)
	c.obs.ObserveMessage(kind, outcome, time.Since(start))
}

func (c *Consumer) settle(ctx context.Context, msg jetstream.Msg, kind string) string {
	var env Envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		c.log.Warn("malformed ingestion message",
			zap.String("subject", msg.Subject()),
			zap.Error(err),
		)
		if termErr := msg.Term(); termErr != nil {
			c.log.Warn("term failed", zap.String("subject", msg.Subject()), zap.Error(termErr))
		}
		return OutcomeTerm
	}
	if env.ID == "" {
		env.ID = messageID(msg)
	}

	log := c.log.With(
		zap.String("message_id", env.ID),
		zap.String("subject", msg.Subject()),
	)
	hctx, cancel := context.WithTimeout(logger.ContextWithLogger(ctx, log), c.handleTimeout)
	defer cancel()

	err := c.apply(hctx, kind, &env)
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			log.Warn("ack failed", zap.Error(ackErr))
		}
		return OutcomeAck
	case errors.Is(err, domain.ErrInvalidContent), errors.Is(err, domain.ErrNotImplemented):
		log.Warn("rejected ingestion message", zap.Error(err))
		if termErr := msg.Term(); termErr != nil {
			log.Warn("term failed", zap.Error(termErr))
		}
		return OutcomeTerm
	default:
		log.Error("ingestion failed", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			log.Warn("nak failed", zap.Error(nakErr))
		}
		return OutcomeNak
	}
}

func (c *Consumer) apply(ctx context.Context, kind string, env *Envelope) error {
	switch kind {
	case SubjectContent:
		if env.Content == nil {
			return fmt.Errorf("%w: content payload missing", domain.ErrInvalidContent)
		}
		return c.indexer.Index(ctx, env.Content)
	case SubjectGroup:
		if env.Group == nil {
			return fmt.Errorf("%w: group payload missing", domain.ErrInvalidContent)
		}
		skipped, err := c.indexer.IndexGroup(ctx, env.Group)
		if skipped > 0 {
			logger.FromContext(ctx).Debug("group members not indexed",
				zap.Int64("group_id", int64(env.Group.ID)),
				zap.Int("skipped", skipped),
			)
		}
		return err
	case SubjectEquivalence:
		if env.Equivalence == nil {
			return fmt.Errorf("%w: equivalence payload missing", domain.ErrInvalidContent)
		}
		_, err := c.indexer.AssignEquivalence(ctx, env.Equivalence.Canonical, env.Equivalence.Members)
		return err
	default:
		return fmt.Errorf("%w: unknown subject %q", domain.ErrInvalidContent, kind)
	}
}

// kind maps a subject on the configured stream onto one of the Subject
// constants, or "unknown".
func (c *Consumer) kind(subject string) string {
	rest, ok := strings.CutPrefix(subject, c.stream)
	if !ok {
		return "unknown"
	}
	switch k := DefaultStream + rest; k {
	case SubjectContent, SubjectGroup, SubjectEquivalence:
		return k
	default:
		return "unknown"
	}
}

func messageID(msg jetstream.Msg) string {
	if h := msg.Headers(); h != nil {
		if id := h.Get(jetstream.MsgIDHeader); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
