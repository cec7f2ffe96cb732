package rabbitmq

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/prompt-playground/internal/runlog"
)

// Publisher sends finished runs to the run queue. It implements
// runlog.Recorder so the transport can hand runs off without touching SQL.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	mu sync.Mutex
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) Record(ctx context.Context, run runlog.Run) error {
	return p.PublishRun(ctx, run)
}

func (p *Publisher) PublishRun(ctx context.Context, run runlog.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.queue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    run.ID,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Retry parks body on the retry queue for delay, after which it dead-letters
// back to the main queue with its retry count bumped.
func (p *Publisher) Retry(ctx context.Context, body []byte, retries int, delay time.Duration) error {
	return p.publish(ctx, RetryQueue(p.queue), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		Headers:      amqp.Table{RetryHeader: int32(retries)},
	})
}

func (p *Publisher) publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",    // default exchange
		queue, // routing key = queue
		false,
		false,
		msg,
	)
}

// Retries reads the retry count a delivery carries.
func Retries(d amqp.Delivery) int {
	switch v := d.Headers[RetryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
