package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message was processed and the offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// committer is the slice of kafka.Reader the workers need.
type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	r       *kafka.Reader
	log     *zap.Logger
	workers int
}

// NewConsumer subscribes one group to a set of topics with manual commits.
func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, log: log, workers: workers}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(ctx, jobs, h, c.r, c.log)
		}()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		}
	}
}

// runWorker drains jobs until the channel closes. A handler error only skips
// the commit; the uncommitted message comes back after a rebalance or restart.
func runWorker(ctx context.Context, jobs <-chan kafka.Message, h Handler, c committer, log *zap.Logger) {
	for m := range jobs {
		if err := h(ctx, m); err != nil {
			log.Error("consumer handler",
				zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := c.CommitMessages(ctx, m); err != nil {
			log.Error("commit offsets", zap.Error(err))
		}
	}
}
