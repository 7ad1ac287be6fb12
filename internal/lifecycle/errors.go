package lifecycle

import (
	"errors"
	"fmt"

	"letters/api/internal/recommendation"
)

// ErrNotDue reports a reminder or expiry requested before its time.
var ErrNotDue = errors.New("transition not due yet")

// ErrMissingToken reports a request that needs a portal link but was stored
// without a token.
var ErrMissingToken = errors.New("request has no portal token")

// DeliveryError reports that a committed transition could not be announced.
// The status change stands; the failure is recorded for the transport to
// retry.
type DeliveryError struct {
	RequestID string
	Kind      recommendation.DeliveryKind
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s message for %s: %v", e.Kind, e.RequestID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
