package notifications

import "context"

type RegistrationNoticeInput struct {
	Email          string
	Name           string
	EventName      string
	RegistrationID string
}

type Notifier interface {
	SendRegistrationConfirmation(ctx context.Context, input RegistrationNoticeInput) error
	SendCancellationNotice(ctx context.Context, input RegistrationNoticeInput) error
}
