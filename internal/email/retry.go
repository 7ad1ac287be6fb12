package email

import (
	"context"
	"errors"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy bounds how hard the transport tries before giving up.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryingSender retries transient failures of the wrapped sender with
// exponential backoff. Callers see a single Send.
type RetryingSender struct {
	next   Sender
	policy RetryPolicy
	logger *zap.Logger
}

func NewRetryingSender(next Sender, policy RetryPolicy, logger *zap.Logger) *RetryingSender {
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingSender{next: next, policy: policy, logger: logger}
}

func (r *RetryingSender) Send(ctx context.Context, msg Message) error {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.next.Send(ctx, msg)
		if err == nil {
			return struct{}{}, nil
		}
		if IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		r.logger.Warn("email send failed",
			zap.Int("attempt", attempt),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.policy.MaxTries))
	return err
}

// IsPermanent reports errors that retrying cannot fix: missing
// configuration, no recipients, or an SMTP 5xx reply.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrNoRecipients) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 500
	}
	return false
}
