package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes reset notifications to the log instead of sending them. It
// keeps no state; the link itself is only written at debug level.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) SendPasswordReset(ctx context.Context, email, resetURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logrus.WithField("email", email).Info("Password reset link dispatched (log transport)")
	logrus.WithField("reset_url", resetURL).Debug("Password reset link")
	return nil
}
