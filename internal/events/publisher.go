// Package events publishes inference outcomes to an AMQP exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/careerlens/careerlens/internal/inference"
)

// DefaultExchange is used when none is configured.
const DefaultExchange = "careerlens.events"

// redialInterval spaces reconnect attempts after a failed dial.
const redialInterval = 5 * time.Second

var (
	errClosed       = errors.New("publisher closed")
	errDisconnected = errors.New("amqp broker disconnected")
)

// Channel is the subset of *amqp.Channel used by Publisher.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel and the connection that owns it.
type dialFunc func() (Channel, io.Closer, error)

// Publisher sends one message per inference event to a topic exchange.
// Publishers from Dial reconnect when the broker closes the channel.
type Publisher struct {
	exchange string
	dial     dialFunc
	now      func() time.Time

	mu       sync.Mutex
	channel  Channel
	conn     io.Closer
	closed   bool
	nextDial time.Time
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	exchange = exchangeName(exchange)
	dial := func() (Channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial amqp: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open amqp channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
		return ch, conn, nil
	}

	ch, conn, err := dial()
	if err != nil {
		return nil, err
	}
	return &Publisher{exchange: exchange, dial: dial, now: time.Now, channel: ch, conn: conn}, nil
}

// NewPublisher wraps an open channel. It does not reconnect.
func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{exchange: exchangeName(exchange), now: time.Now, channel: ch}
}

func exchangeName(exchange string) string {
	if strings.TrimSpace(exchange) == "" {
		return DefaultExchange
	}
	return exchange
}

// RoutingKey returns inference.<operation>.<outcome>.
func RoutingKey(ev inference.Event) string {
	return fmt.Sprintf("inference.%s.%s", keySegment(ev.Operation), keySegment(string(ev.Outcome)))
}

// keySegment keeps dots out of a topic segment.
func keySegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, ".", "_")
}

// Message builds the AMQP message for ev.
func Message(ev inference.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode event: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: ev.RequestID,
		Timestamp:     ev.At,
		Type:          "inference.outcome",
		Body:          body,
	}, nil
}

// Record publishes ev. It satisfies inference.Sink; wrap it in an AsyncSink
// so a slow broker never delays requests. A closed channel is redialled once
// and the publish retried; failed dials are retried at most every
// redialInterval.
func (p *Publisher) Record(_ context.Context, ev inference.Event) error {
	msg, err := Message(ev)
	if err != nil {
		return err
	}
	key := RoutingKey(ev)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errClosed
	}
	if p.channel == nil {
		if err := p.reconnect(); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
	}

	err = p.channel.Publish(p.exchange, key, false, false, msg)
	if errors.Is(err, amqp.ErrClosed) && p.dial != nil {
		p.disconnect()
		if rerr := p.reconnect(); rerr != nil {
			return fmt.Errorf("publish %s: %w", key, rerr)
		}
		err = p.channel.Publish(p.exchange, key, false, false, msg)
	}
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// reconnect dials a new channel. Callers hold p.mu.
func (p *Publisher) reconnect() error {
	if p.dial == nil {
		return errDisconnected
	}
	if now := p.now(); now.Before(p.nextDial) {
		return errDisconnected
	}
	ch, conn, err := p.dial()
	if err != nil {
		p.nextDial = p.now().Add(redialInterval)
		return fmt.Errorf("%w: %w", errDisconnected, err)
	}
	p.channel, p.conn, p.nextDial = ch, conn, time.Time{}
	return nil
}

// disconnect drops the current channel and connection. Callers hold p.mu.
func (p *Publisher) disconnect() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.channel, p.conn = nil, nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
