package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/domain"
	"github.com/spirithubcafe/spirithubcafe-sub004/internal/region"
	"go.uber.org/zap"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "storefront-cart"
)

// CheckoutCompletedEvent is the outbox payload published once a checkout
// has been paid for.
type CheckoutCompletedEvent struct {
	CheckoutID string        `json:"checkout_id"`
	SessionID  string        `json:"session_id"`
	Region     domain.Region `json:"region"`
}

// RegionClearer empties one region's cart of a session
type RegionClearer interface {
	ClearRegion(ctx context.Context, sessionID string, r domain.Region) error
}

type Consumer struct {
	carts  RegionClearer
	reader *kafka.Reader
	logger *zap.Logger
}

func NewConsumer(carts RegionClearer, logger *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{carts: carts, reader: reader, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.logger.Warn("error reading message", zap.Error(err))
		return
	}

	if err := c.handle(ctx, m.Value); err != nil {
		c.logger.Warn("skipping checkout event",
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event CheckoutCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("parse event: %w", err)
	}

	if event.SessionID == "" {
		return errors.New("missing session_id")
	}
	if event.Region == "" {
		event.Region = domain.DefaultRegion
	}
	if !region.Valid(event.Region) {
		return fmt.Errorf("unknown region %q", event.Region)
	}

	if err := c.carts.ClearRegion(ctx, event.SessionID, event.Region); err != nil {
		return fmt.Errorf("clear %s cart of session %s: %w", event.Region, event.SessionID, err)
	}

	c.logger.Info("cart cleared after checkout",
		zap.String("checkout_id", event.CheckoutID),
		zap.String("session_id", event.SessionID),
		zap.String("region", string(event.Region)))
	return nil
}
