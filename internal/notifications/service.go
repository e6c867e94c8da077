package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/streadway/amqp"

	"spritebatch/internal/config"
)

const dialTimeout = 10 * time.Second

// Event enumerates the run milestones published to the broker.
type Event string

const (
	EventRunStarted   Event = "run.started"
	EventBatchFailed  Event = "batch.failed"
	EventRunCompleted Event = "run.completed"
	EventRunFailed    Event = "run.failed"
)

// Message is the JSON body of a published event.
type Message struct {
	Event        Event     `json:"event"`
	RunID        string    `json:"run_id"`
	RootDir      string    `json:"root_dir,omitempty"`
	OutputDir    string    `json:"output_dir,omitempty"`
	TotalImages  int       `json:"total_images,omitempty"`
	TotalBatches int       `json:"total_batches,omitempty"`
	BatchIndex   int       `json:"batch_index,omitempty"`
	Detected     []int     `json:"detected,omitempty"`
	Failed       []int     `json:"failed,omitempty"`
	Skipped      []int     `json:"skipped,omitempty"`
	ArchivePath  string    `json:"archive_path,omitempty"`
	PublishedURL string    `json:"published_url,omitempty"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Service defines the notification surface exposed to the pipeline.
type Service interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// channel is the subset of *amqp.Channel used for publishing.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// NewService dials the configured broker and declares the event queue. When
// notifications are disabled a noop implementation is returned.
func NewService(cfg *config.Config) (Service, error) {
	if cfg == nil || !cfg.Notifications.Enabled {
		return noopService{}, nil
	}
	url := strings.TrimSpace(cfg.Notifications.AMQPURL)
	queue := strings.TrimSpace(cfg.Notifications.Queue)

	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &amqpService{channel: ch, closer: conn.Close, queue: queue}, nil
}

type amqpService struct {
	channel channel
	closer  func() error
	queue   string
}

func (s *amqpService) Publish(ctx context.Context, msg Message) error {
	if s == nil || s.channel == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", msg.Event, err)
	}
	err = s.channel.Publish(
		"",      // exchange
		s.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         string(msg.Event),
			MessageId:    msg.RunID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.Timestamp,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", msg.Event, err)
	}
	return nil
}

func (s *amqpService) Close() error {
	if s == nil {
		return nil
	}
	var firstErr error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if s.closer != nil {
		if err := s.closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Noop returns a Service that discards every event.
func Noop() Service {
	return noopService{}
}

type noopService struct{}

func (noopService) Publish(context.Context, Message) error { return nil }

func (noopService) Close() error { return nil }
