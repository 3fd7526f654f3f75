package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/carmarket/server/internal/model"
)

// CodeSender delivers a code to a destination over a channel (SMS, e-mail).
// Implementations may queue and return immediately.
type CodeSender interface {
	Send(ctx context.Context, channel model.Channel, destination, code string) error
}

// LogSender is the development CodeSender: it writes deliveries to the log.
// The code itself is only logged when ShowCode is set.
type LogSender struct {
	Log      *slog.Logger
	ShowCode bool
}

func (s LogSender) Send(ctx context.Context, channel model.Channel, destination, code string) error {
	attrs := []any{"channel", string(channel), "destination", MaskDestination(destination)}
	if s.ShowCode {
		attrs = append(attrs, "code", code)
	}
	s.Log.InfoContext(ctx, "verification code dispatched", attrs...)
	return nil
}

// MaskDestination masks a phone number or e-mail for logging (e.g., +49******89, jo****@example.com).
func MaskDestination(dest string) string {
	if at := strings.LastIndex(dest, "@"); at > 0 {
		local := dest[:at]
		if len(local) <= 2 {
			return strings.Repeat("*", len(local)) + dest[at:]
		}
		return local[:2] + strings.Repeat("*", len(local)-2) + dest[at:]
	}
	if len(dest) <= 4 {
		return "****"
	}
	return dest[:2] + strings.Repeat("*", len(dest)-4) + dest[len(dest)-2:]
}
