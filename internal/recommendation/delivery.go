package recommendation

import "time"

type DeliveryKind string

const (
	DeliveryInitial    DeliveryKind = "initial"
	DeliveryReminder   DeliveryKind = "reminder"
	DeliveryCompletion DeliveryKind = "completion"
)

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// Delivery records one attempt to hand a message to the email transport.
type Delivery struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"requestId"`
	Kind       DeliveryKind   `json:"kind"`
	Recipients []string       `json:"recipients"`
	Subject    string         `json:"subject"`
	Status     DeliveryStatus `json:"status"`
	LastError  string         `json:"lastError,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
