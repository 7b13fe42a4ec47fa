package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/pixelmind/internal/models"
)

// ErrMalformed marks a payload that can never be processed. Such messages
// are terminated instead of redelivered.
var ErrMalformed = errors.New("malformed message")

type TaskHandler func(ctx context.Context, task models.AssetTask) error

type EventHandler func(ctx context.Context, ev models.AssetProcessed) error

// TaskOptions tune the durable task consumer.
type TaskOptions struct {
	Workers    int
	AckWait    time.Duration
	MaxDeliver int
	NakDelay   time.Duration
}

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
	wg sync.WaitGroup
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

func decodeTask(data []byte) (models.AssetTask, error) {
	var task models.AssetTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if task.FileID == "" || task.OwnerID == "" {
		return task, fmt.Errorf("%w: task without file or owner id", ErrMalformed)
	}
	return task, nil
}

func decodeEvent(data []byte) (models.AssetProcessed, error) {
	var ev models.AssetProcessed
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ev, nil
}

// settle acks, naks or terminates msg depending on the handler outcome.
func settle(msg jetstream.Msg, err error, nakDelay time.Duration) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrMalformed):
		_ = msg.Term()
	case nakDelay > 0:
		_ = msg.NakWithDelay(nakDelay)
	default:
		_ = msg.Nak()
	}
}

// ConsumeTasks starts consuming asset tasks from the ASSETS stream.
// opts.Workers goroutines process messages concurrently; Wait blocks until
// they have drained after ctx is cancelled.
func (c *Consumer) ConsumeTasks(ctx context.Context, consumerName string, handler TaskHandler, opts TaskOptions) error {
	workerCount := max(1, opts.Workers)

	stream, err := c.js.Stream(ctx, AssetsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AssetsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
		FilterSubject: AssetsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch tasks error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					_ = msg.Nak()
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			for msg := range msgCh {
				task, err := decodeTask(msg.Data())
				if err == nil {
					err = handler(ctx, task)
				}
				if err != nil {
					slog.Error("process task error", "worker", workerID, "error", err, "subject", msg.Subject())
				}
				settle(msg, err, opts.NakDelay)
			}
		}(i)
	}

	slog.Info("task consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeEvents starts consuming processed events (for the API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				ev, err := decodeEvent(msg.Data())
				if err == nil {
					err = handler(ctx, ev)
				}
				if err != nil {
					slog.Error("process event error", "error", err)
				}
				settle(msg, err, 0)
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

// Wait blocks until every fetch loop and worker has returned.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
