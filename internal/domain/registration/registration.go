package registration

import (
	"errors"
	"time"

	"github.com/bellcorp/events/internal/domain/event"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusCancelled:
		return true
	default:
		return false
	}
}

type Registration struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	EventID      string    `json:"eventId"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registeredAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// populated for display on register / my-events responses
	Event *event.Event `json:"event,omitempty"`
}

// if you already hold an active registration for the pair
var ErrAlreadyRegistered = errors.New("registration already exists")

// no seats left on the event
var ErrSoldOut = errors.New("event is sold out")

var ErrNotFound = errors.New("registration not found")

// the storage layer aborted the transaction (lock timeout, serialization
// failure). Safe for the caller to retry; never retried here.
var ErrTransient = errors.New("transient storage conflict")

// MyEvents partitions a user's active registrations by the event date,
// using one snapshot of "now" taken at query time.
type MyEvents struct {
	Upcoming []Registration `json:"upcoming"`
	Past     []Registration `json:"past"`
	Total    int            `json:"total"`
}

// builds a fresh active registration for a (user, event) pair
func New(userID, eventID string) Registration {
	now := time.Now()
	return Registration{
		ID:           uuid.NewString(),
		UserID:       userID,
		EventID:      eventID,
		Status:       StatusActive,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
