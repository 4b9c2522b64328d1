// AngelaMos | 2026
// amqp.go

package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errNacked = errors.New("broker rejected message")
	errClosed = errors.New("amqp sender closed")
)

type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	From       string
}

// AMQPSender publishes delivery requests to a durable topic exchange with
// publisher confirms. A dropped connection is redialled on the next send.
type AMQPSender struct {
	cfg    AMQPConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

func NewAMQPSender(cfg AMQPConfig, logger *slog.Logger) (*AMQPSender, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url is required")
	}
	if cfg.Exchange == "" {
		return nil, fmt.Errorf("amqp exchange is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &AMQPSender{cfg: cfg, logger: logger.With("component", "mail")}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dial(); err != nil {
		return nil, err
	}

	return s, nil
}

// dial must be called with mu held.
func (s *AMQPSender) dial() error {
	conn, err := amqp.Dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(
		s.cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", s.cfg.Exchange, err)
	}

	s.conn = conn
	s.ch = ch
	return nil
}

func (s *AMQPSender) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}

	s.logger.Warn("amqp channel closed, redialling")
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if err := s.dial(); err != nil {
		return nil, err
	}
	return s.ch, nil
}

func (s *AMQPSender) SendVerificationCode(
	ctx context.Context,
	to, code string,
) error {
	msg, err := s.publishing(ctx, to, code, time.Now().UTC())
	if err != nil {
		return &DeliveryError{To: to, Err: err}
	}

	ch, err := s.channel()
	if err != nil {
		return &DeliveryError{To: to, Err: err}
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		s.cfg.Exchange,
		s.cfg.RoutingKey,
		false,
		false,
		msg,
	)
	if err != nil {
		return &DeliveryError{To: to, Err: fmt.Errorf("publish: %w", err)}
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return &DeliveryError{To: to, Err: fmt.Errorf("await confirm: %w", err)}
	}
	if !acked {
		return &DeliveryError{To: to, Err: errNacked}
	}

	s.logger.InfoContext(ctx, "verification code queued",
		"message_id", msg.MessageId,
	)
	return nil
}

func (s *AMQPSender) publishing(
	ctx context.Context,
	to, code string,
	now time.Time,
) (amqp.Publishing, error) {
	body, err := json.Marshal(VerificationCodeRequested{
		Type:        verificationCodeType,
		From:        s.cfg.From,
		To:          to,
		Code:        code,
		RequestedAt: now,
	})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		MessageId:    uuid.NewString(),
		Timestamp:    now,
		Type:         verificationCodeType,
		Headers: amqp.Table{
			"X-Request-ID": chimw.GetReqID(ctx),
		},
	}, nil
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	var errs []error
	if s.ch != nil {
		if err := s.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		s.ch = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
		s.conn = nil
	}

	return errors.Join(errs...)
}
