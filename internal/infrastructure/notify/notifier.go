package notify

import (
	"context"

	domain "github.com/Zhima-Mochi/chatshop/internal/domain/notify"
	"go.uber.org/zap"
)

// LogNotifier writes buyer notifications to the log. It stands in for the
// chat transport, which is an external collaborator of the core.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{log: logger.With(zap.String("component", "notifier"))}
}

func (n *LogNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	_ = ctx
	n.log.Info("notification_delivered",
		zap.String("buyer_id", msg.BuyerID),
		zap.String("text", msg.Text),
		zap.Bool("has_attachment", msg.Attachment != ""),
	)
	return nil
}
