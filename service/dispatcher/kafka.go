package dispatcher

import (
	"context"
	"encoding/json"
	"sync"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/tools/errs"
	"PSyncProject/tools/safe"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Consumer feeds the dispatch table from the canonical store's event
// topics. Payloads carry identifiers only; the projection handlers
// re-read canonical state, so at-least-once delivery is fine here.
type Consumer struct {
	group  sarama.ConsumerGroup
	disp   *Dispatcher
	topics []string

	closeOnce sync.Once
}

func NewConsumer(brokers []string, groupID string, topics []string, disp *Dispatcher) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, errs.WrapMsg(err, "create consumer group", "group", groupID)
	}
	return &Consumer{group: group, disp: disp, topics: topics}, nil
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	safe.SafeGo("kafka-errors", func() {
		for err := range c.group.Errors() {
			logger.Error("consumer group error", zap.Error(err))
		}
	})
	safe.SafeGo("kafka-consume", func() {
		handler := &groupHandler{disp: c.disp}
		for {
			if ctx.Err() != nil {
				return
			}
			if err := c.group.Consume(ctx, c.topics, handler); err != nil {
				logger.Error("consume error", zap.Error(err))
			}
		}
	})
}

func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.group.Close() })
	return err
}

type groupHandler struct {
	disp *Dispatcher
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group setup")
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("consumer group cleanup")
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		var ev model.MessageEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			logger.Error("bad event payload",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err))
			session.MarkMessage(msg, "")
			continue
		}
		// The offset is marked only after Dispatch returns: handlers
		// swallow their failures into the error log, so redelivery after
		// a crash duplicates work at worst, never loses the event.
		h.disp.Dispatch(session.Context(), ev)
		session.MarkMessage(msg, "")
	}
	return nil
}
