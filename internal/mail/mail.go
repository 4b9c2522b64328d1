// AngelaMos | 2026
// mail.go

// Package mail hands verification codes to a delivery backend. It does not
// render or transport email itself.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var ErrDelivery = errors.New("mail delivery failed")

// Sender delivers a verification code to an address. Implementations must
// honour ctx cancellation.
type Sender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

type DeliveryError struct {
	To  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver verification code: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// VerificationCodeRequested is the message body handed to the mail worker.
type VerificationCodeRequested struct {
	Type        string    `json:"type"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Code        string    `json:"code"`
	RequestedAt time.Time `json:"requested_at"`
}

const verificationCodeType = "verification_code"

type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a development sender that only logs. The code is
// written at debug level so it never reaches production log levels.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "mail")}
}

func (s *LogSender) SendVerificationCode(ctx context.Context, to, code string) error {
	if err := ctx.Err(); err != nil {
		return &DeliveryError{To: to, Err: err}
	}

	s.logger.InfoContext(ctx, "verification code delivered", "to", to)
	s.logger.DebugContext(ctx, "verification code", "to", to, "code", code)

	return nil
}

type timeoutSender struct {
	next    Sender
	timeout time.Duration
}

// WithTimeout bounds each delivery by d. Every failure, including the
// deadline, comes back as a *DeliveryError.
func WithTimeout(next Sender, d time.Duration) Sender {
	return &timeoutSender{next: next, timeout: d}
}

func (s *timeoutSender) SendVerificationCode(
	ctx context.Context,
	to, code string,
) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.next.SendVerificationCode(ctx, to, code)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil {
		return nil
	}

	var de *DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &DeliveryError{To: to, Err: err}
}
