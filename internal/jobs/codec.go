package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bellcorp/events/internal/domain/job"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidPayload = errors.New("invalid job payload")
)

// DecodeNotice unmarshals and minimally validates a registration notice job.
func DecodeNotice(j job.Job) (RegistrationNoticePayload, error) {
	if !IsKnownType(j.Type) {
		return RegistrationNoticePayload{}, ErrUnknownJobType
	}

	if len(j.Payload) == 0 {
		return RegistrationNoticePayload{}, ErrInvalidPayload
	}

	var p RegistrationNoticePayload

	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return RegistrationNoticePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(p.RegistrationID) == "" ||
		strings.TrimSpace(p.UserID) == "" ||
		strings.TrimSpace(p.EventID) == "" {
		return RegistrationNoticePayload{}, ErrInvalidPayload
	}

	return p, nil
}
