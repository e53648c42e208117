package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/user"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	batchTimeout   = 10 * time.Millisecond
	publishTimeout = 2 * time.Second
)

// Publisher writes invalidations for role changes made on this node. It runs
// inline on the event bus, so each write is bounded by a timeout.
type Publisher struct {
	writer  Writer
	origin  string
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher writes to topic on brokers. origin identifies this node.
func NewPublisher(brokers []string, topic, origin string, logger *slog.Logger) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: batchTimeout,
		WriteTimeout: publishTimeout,
	}
	return NewPublisherWithWriter(w, origin, logger)
}

// NewPublisherWithWriter allows injecting a test writer.
func NewPublisherWithWriter(w Writer, origin string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, origin: origin, logger: logger.With("component", "fanout"), timeout: publishTimeout}
}

// Handle implements events.Handler for user.RolesChanged. Other events are
// ignored.
func (p *Publisher) Handle(ctx context.Context, ev events.Event) error {
	changed, ok := ev.(user.RolesChanged)
	if !ok {
		return nil
	}
	return p.Publish(ctx, Invalidation{
		UserID: changed.UserID,
		Origin: p.origin,
		At:     changed.At,
	})
}

// Publish writes msg keyed by its user id.
func (p *Publisher) Publish(ctx context.Context, msg Invalidation) error {
	if msg.Origin == "" {
		msg.Origin = p.origin
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(wctx, kafka.Message{Key: []byte(msg.UserID), Value: b}); err != nil {
		p.logger.WarnContext(ctx, "permission invalidation publish failed", "user_id", msg.UserID, "error", err)
		return fmt.Errorf("publishing invalidation: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
