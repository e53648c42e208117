package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Invalidator drops a user's cached permissions on this node.
type Invalidator interface {
	InvalidatePermissionsCache(ctx context.Context, userID string) error
}

const (
	handleTimeout = 10 * time.Second
	fetchBackoff  = time.Second
	handleRetries = 3
	retryBackoff  = 200 * time.Millisecond
)

// Consumer applies invalidations published by other nodes.
type Consumer struct {
	reader      Reader
	origin      string
	invalidator Invalidator
	logger      *slog.Logger
	backoff     time.Duration
}

// NewConsumer reads topic with the consumer group groupID-origin, so every
// node receives every message.
func NewConsumer(brokers []string, topic, groupID, origin string, inv Invalidator, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID + "-" + origin,
		MinBytes: 1,
		MaxBytes: 1e6,
	})
	return NewConsumerWithReader(r, origin, inv, logger)
}

// NewConsumerWithReader allows injecting a test reader.
func NewConsumerWithReader(r Reader, origin string, inv Invalidator, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:      r,
		origin:      origin,
		invalidator: inv,
		logger:      logger.With("component", "fanout"),
		backoff:     retryBackoff,
	}
}

// Run blocks until ctx is cancelled. A failed invalidation is retried with a
// linear backoff and then skipped. The group reader has already moved past
// it, so delivery is best-effort and a missed invalidation lasts at most one
// cache TTL.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WarnContext(ctx, "fetching invalidation failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(fetchBackoff):
			}
			continue
		}

		if err := c.handleWithRetry(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WarnContext(ctx, "applying invalidation failed, skipping", "offset", m.Offset, "error", err)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.WarnContext(ctx, "committing invalidation offset failed", "offset", m.Offset, "error", err)
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) error {
	var err error
	for attempt := 1; attempt <= handleRetries; attempt++ {
		if err = c.handle(ctx, m); err == nil {
			return nil
		}
		if attempt == handleRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return err
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	var msg Invalidation
	if err := json.Unmarshal(m.Value, &msg); err != nil || msg.UserID == "" {
		// Undecodable messages are committed so they do not block the partition.
		c.logger.WarnContext(ctx, "dropping malformed invalidation", "offset", m.Offset)
		return nil
	}
	if msg.Origin == c.origin {
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	if err := c.invalidator.InvalidatePermissionsCache(hctx, msg.UserID); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "permission cache invalidated by peer", "user_id", msg.UserID, "origin", msg.Origin)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
