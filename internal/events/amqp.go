package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	dialTimeout    = 5 * time.Second
	publishTimeout = 5 * time.Second
	minBackoff     = time.Second
	maxBackoff     = 30 * time.Second
	bufferSize     = 256
)

var (
	ErrBufferFull      = errors.New("audit event buffer full")
	ErrPublisherClosed = errors.New("audit publisher closed")
)

type dialFunc func() (*amqp.Connection, error)

// AMQPPublisher writes events as persistent JSON messages to a durable
// RabbitMQ queue through the default exchange. Publish only enqueues; a
// single goroutine owns the connection and does the network work.
type AMQPPublisher struct {
	queue string
	dial  dialFunc

	pending   chan Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// owned by run
	conn     *amqp.Connection
	ch       *amqp.Channel
	backoff  time.Duration
	nextDial time.Time
	now      func() time.Time
}

// NewAMQPPublisher dials the broker, declares the queue and starts the
// delivery goroutine. Call Close to flush and stop it.
func NewAMQPPublisher(url, queue string) (*AMQPPublisher, error) {
	p := newAMQPPublisher(queue, func() (*amqp.Connection, error) {
		return amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	}, bufferSize)
	if err := p.connect(); err != nil {
		return nil, err
	}
	go p.run()
	return p, nil
}

func newAMQPPublisher(queue string, dial dialFunc, size int) *AMQPPublisher {
	return &AMQPPublisher{
		queue:   queue,
		dial:    dial,
		pending: make(chan Event, size),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		now:     time.Now,
	}
}

func (p *AMQPPublisher) connect() error {
	conn, err := p.dial()
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Publish queues e for delivery and never waits on the broker. It fails
// with ErrBufferFull when the queue is saturated.
func (p *AMQPPublisher) Publish(_ context.Context, e Event) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.pending <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

func (p *AMQPPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case e := <-p.pending:
			p.deliver(e)
		case <-p.done:
			for {
				select {
				case e := <-p.pending:
					p.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (p *AMQPPublisher) deliver(e Event) {
	if err := p.ensureConnected(); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("dropping audit event")
		return
	}
	if err := p.send(e); err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Msg("dropping audit event")
	}
}

// ensureConnected redials a closed connection, at most once per backoff step
func (p *AMQPPublisher) ensureConnected() error {
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	now := p.now()
	if now.Before(p.nextDial) {
		return errors.New("rabbitmq unavailable, waiting to redial")
	}

	log.Warn().Str("queue", p.queue).Msg("rabbitmq connection closed, redialing")
	if err := p.connect(); err != nil {
		switch {
		case p.backoff == 0:
			p.backoff = minBackoff
		case p.backoff < maxBackoff:
			p.backoff = min(2*p.backoff, maxBackoff)
		}
		p.nextDial = now.Add(p.backoff)
		return err
	}
	p.backoff = 0
	p.nextDial = time.Time{}
	return nil
}

func (p *AMQPPublisher) send(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    e.ID,
		Type:         string(e.Type),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		msg,
	); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close stops accepting events, delivers what is queued and releases the
// channel and connection
func (p *AMQPPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	<-p.stopped

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
