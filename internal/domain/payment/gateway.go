package payment

import "context"

type Status string

const (
	StatusSuccess Status = "success"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Gateway is the payment provider seen from the core. There is no webhook;
// the poller discovers outcomes by querying the label attached to the payment
// link. A non-nil error from QueryStatus is transient: the caller retries on
// the next tick and the error never counts toward expiry.
type Gateway interface {
	PaymentLink(ctx context.Context, label string, amount int64) (string, error)
	QueryStatus(ctx context.Context, label string) (Status, error)
}
