package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// LogNotifier stands in for a real mail provider; it writes the notice to
// the structured log. Useful locally and as the default in tests.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendRegistrationConfirmation(ctx context.Context, in RegistrationNoticeInput) error {
	if err := n.simulateProvider(ctx); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.registration_confirmed",
		"email", in.Email,
		"name", in.Name,
		"event", in.EventName,
		"registration", in.RegistrationID,
	)
	return nil
}

func (n *LogNotifier) SendCancellationNotice(ctx context.Context, in RegistrationNoticeInput) error {
	if err := n.simulateProvider(ctx); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.registration_cancelled",
		"email", in.Email,
		"name", in.Name,
		"event", in.EventName,
		"registration", in.RegistrationID,
	)
	return nil
}

func (n *LogNotifier) simulateProvider(ctx context.Context) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
