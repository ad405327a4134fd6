package notifier

import (
	"context"

	"github.com/dmitrijs2005/moodcycle/internal/logging"
)

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	log logging.Logger
}

func NewLogNotifier(log logging.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("module", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.log.Info(ctx, "notification", "kind", msg.Kind, "user_id", msg.UserID, "subject", subject(msg))
	return nil
}
