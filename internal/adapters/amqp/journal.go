// Package amqp publishes call transitions to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Talkie/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const DefaultExchange = "talkie.calls"

// Publisher is the slice of *amqp.Channel the journal needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Journal implements core.CallJournal. Records are routed by
// "call.<action>.<booking>".
type Journal struct {
	exchange string
	pub      Publisher

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to url and declares a durable topic exchange.
func Dial(url, exchange string) (*Journal, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	log.Info().Str("module", "adapters.amqp").Str("exchange", exchange).Msg("call journal connected")
	j := NewJournal(exchange, ch)
	j.conn, j.ch = conn, ch
	return j, nil
}

func NewJournal(exchange string, pub Publisher) *Journal {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Journal{exchange: exchange, pub: pub}
}

func RoutingKey(rec domain.CallRecord) string {
	return "call." + rec.Action + "." + string(rec.Key)
}

func (j *Journal) Record(ctx context.Context, rec domain.CallRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode call record: %w", err)
	}
	err = j.pub.PublishWithContext(ctx, j.exchange, RoutingKey(rec), false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    rec.At,
		Type:         "call." + rec.Action,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish call record: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	if j.ch != nil {
		errs = append(errs, j.ch.Close())
		j.ch = nil
	}
	if j.conn != nil {
		errs = append(errs, j.conn.Close())
		j.conn = nil
	}
	return errors.Join(errs...)
}
