package jobs

import (
	"encoding/json"
	"time"
)

const (
	TypeRegistrationConfirmed = "registration.confirmed"
	TypeRegistrationCancelled = "registration.cancelled"
)

func IsKnownType(t string) bool {
	switch t {
	case TypeRegistrationConfirmed, TypeRegistrationCancelled:
		return true
	default:
		return false
	}
}

// RegistrationNoticePayload carries both confirmation and cancellation
// notices. Kept ID-based and minimal; the worker loads user contact details
// itself.
type RegistrationNoticePayload struct {
	RegistrationID string    `json:"registrationId"`
	UserID         string    `json:"userId"`
	EventID        string    `json:"eventId"`
	EventName      string    `json:"eventName"`
	RequestedAt    time.Time `json:"requestedAt"`
}

func (p RegistrationNoticePayload) JSON() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
