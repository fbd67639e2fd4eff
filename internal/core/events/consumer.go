package events

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"github.com/hookgate/hookgate/internal/jsoncodec"
	"github.com/hookgate/hookgate/internal/observability"
)

// NewBus returns the in-process pub/sub used between processor and consumer.
func NewBus(bufferSize int64, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: bufferSize}, logger)
}

// HandlerFunc handles one decoded notification.
type HandlerFunc func(ctx context.Context, n Notification) error

// Consumer drains the notification topic in the background.
type Consumer struct {
	Subscriber message.Subscriber
	Topic      string
	Handle     HandlerFunc
	Logger     observability.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer subscribes to topic with handle. A nil handle logs each
// notification.
func NewConsumer(sub message.Subscriber, topic string, handle HandlerFunc) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	c := &Consumer{Subscriber: sub, Topic: topic, Handle: handle}
	if c.Handle == nil {
		c.Handle = c.logNotification
	}
	return c
}

// Start subscribes and begins consuming. It is a no-op when already running.
func (c *Consumer) Start(ctx context.Context) error {
	if c.Subscriber == nil {
		return errors.New("events consumer has no subscriber")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	messages, err := c.Subscriber.Subscribe(runCtx, c.Topic)
	if err != nil {
		cancel()
		return err
	}
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx, messages)
	}()
	return nil
}

// Shutdown stops consuming and waits for the in-flight message.
func (c *Consumer) Shutdown() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context, messages <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.dispatch(ctx, msg)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg *message.Message) {
	var n Notification
	if err := jsoncodec.Unmarshal(msg.Payload, &n); err != nil {
		c.logger().Warn("integration.event_decode_failed",
			zap.String("message_uuid", msg.UUID),
			zap.Error(err))
		msg.Ack()
		return
	}

	// gochannel redelivers nacked messages forever, so failures are logged and acked.
	if err := c.Handle(ctx, n); err != nil {
		c.logger().Warn("integration.event_handler_failed",
			zap.String("message_uuid", msg.UUID),
			zap.String("action", n.Action),
			zap.Error(err))
	}
	msg.Ack()
}

func (c *Consumer) logNotification(_ context.Context, n Notification) error {
	c.logger().Info("integration.event_processed",
		zap.String("integration_id", n.IntegrationID),
		zap.String("service_id", n.ServiceID),
		zap.String("action", n.Action),
		zap.String("incident_id", n.IncidentID))
	return nil
}

func (c *Consumer) logger() observability.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return observability.Server()
}
