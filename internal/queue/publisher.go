package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/shipping-auth/internal/mail"
)

// Publisher hands emails to the broker. It dials per publish; auth email
// volume is low and this keeps the process free of long-lived channels.
type Publisher struct {
	URL string
	Log logrus.FieldLogger
	Now func() time.Time
}

func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{URL: url, Log: log, Now: time.Now}
}

// Send publishes msg to the email queue as a persistent message.
func (p *Publisher) Send(ctx context.Context, msg mail.Message) error {
	body, err := encode(msg, p.Now().UTC())
	if err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.URL, dialConfig(ctx))
	if err != nil {
		p.Log.WithError(err).Warn("rabbitmq: dial failed")
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch); err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",             // default exchange
		EmailQueueName, // routing key = queue name
		false,          // mandatory
		false,          // immediate
		pub,
	); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// defaultDialTimeout bounds connect and handshake when ctx has no deadline.
const defaultDialTimeout = 30 * time.Second

// dialConfig matches amqp.Dial's defaults but bounds the TCP connect and
// the AMQP handshake by ctx. The library clears the deadline once the
// connection is open.
func dialConfig(ctx context.Context) amqp.Config {
	return amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			deadline, ok := ctx.Deadline()
			if !ok {
				deadline = time.Now().Add(defaultDialTimeout)
			}
			d := net.Dialer{Deadline: deadline}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if err := conn.SetDeadline(deadline); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}
}

func encode(msg mail.Message, at time.Time) ([]byte, error) {
	body, err := json.Marshal(EmailRequested{
		To:          msg.To,
		Subject:     msg.Subject,
		HTML:        msg.HTML,
		RequestedAt: at,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal email event: %w", err)
	}
	return body, nil
}

// declare ensures the queue exists. Durable so messages survive broker
// restarts.
func declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(
		EmailQueueName, // name
		true,           // durable
		false,          // autoDelete
		false,          // exclusive
		false,          // noWait
		nil,            // args
	); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
