package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"

	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// EventSink receives validated log events pulled off the topic.
type EventSink interface {
	InsertLogEvent(ctx context.Context, e models.LogEvent) error
}

// Consumer pulls structured log events from Kafka and lands them in the
// event store, where the alert engine picks them up.
type Consumer struct {
	reader *kafka.Reader
	sink   EventSink
	logger *logging.Logger
}

func NewConsumer(cfg Config, sink EventSink, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, sink: sink, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started (topic=%s)", c.reader.Config().Topic)

		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			var event models.LogEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				c.logger.Errorf("Unmarshal message failed: %v", err)
				continue
			}
			if !event.Validate() {
				c.logger.Errorf("Invalid log event dropped (trace=%q action=%q)", event.TraceID, event.Action)
				continue
			}

			if err := c.sink.InsertLogEvent(ctx, event); err != nil {
				c.logger.Errorf("Store log event failed (trace=%s): %v", event.TraceID, err)
				continue
			}
			c.logger.Debugf("Processed log event trace=%s action=%s", event.TraceID, event.Action)
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Kafka reader close failed: %v", err)
	}
}
