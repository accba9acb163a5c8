package billing

import "context"

// Processor is the payment-processor boundary. The reconciler only needs
// these operations; keeping the surface narrow keeps the money rules
// testable without the processor SDK.
type Processor interface {
	// CreateCustomer enrolls the account and returns the processor's
	// customer id. Implementations must be idempotent per account.
	CreateCustomer(ctx context.Context, accountID, email, name string) (string, error)

	// CreateSubscription attaches the recurring plan: a fixed monthly item
	// plus a metered usage item priced from the rate card. Returns the
	// subscription id.
	CreateSubscription(ctx context.Context, customerID string, s Settings) (string, error)

	// ChargeSetupFee collects the one-time enrollment charge off-session.
	// Returns the payment reference.
	ChargeSetupFee(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error)

	// ReportUsage pushes accrued usage (in minor units) onto the metered
	// subscription item.
	ReportUsage(ctx context.Context, customerID string, amountMinor int64, idempotencyKey string) error

	// CheckoutURL creates a hosted top-up session and returns its URL.
	CheckoutURL(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error)

	// CheckoutStatus retrieves a hosted session's payment state and the
	// amount collected, in minor units. Unsettled sessions report
	// PaymentStatusPending.
	CheckoutStatus(ctx context.Context, sessionID string) (PaymentStatus, int64, error)
}
