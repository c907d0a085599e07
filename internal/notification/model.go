package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated           = "order.created"
	EventOrderConfirmationEmail = "order.confirmation_email"
)

var ErrNoPublisher = errors.New("no publisher for event type")

// Event is one row of the transactional outbox.
type Event struct {
	ID          int64
	EventID     uuid.UUID
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

type OrderCreatedPayload struct {
	OrderID       uuid.UUID `json:"order_id"`
	Number        string    `json:"number"`
	CheckoutToken uuid.UUID `json:"checkout_token"`
	Status        string    `json:"status"`
	UserEmail     string    `json:"user_email"`
	TotalGross    string    `json:"total_gross"`
	Currency      string    `json:"currency"`
	CreatedAt     time.Time `json:"created_at"`
}

type ConfirmationEmailPayload struct {
	OrderID      uuid.UUID `json:"order_id"`
	Number       string    `json:"number"`
	Email        string    `json:"email"`
	LanguageCode string    `json:"language_code"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
}
