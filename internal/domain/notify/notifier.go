package notify

import "context"

// Notification is one message to a buyer's chat session. Attachment carries
// the purchased content on successful delivery and is empty otherwise.
type Notification struct {
	BuyerID    string
	Text       string
	Attachment string
}

// Notifier delivers a message to the buyer. Delivery failures are logged by
// the caller, never retried by the core, and never roll back a paid order.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
