package billing

import (
	"context"
	"fmt"
	"strconv"

	stripe "github.com/stripe/stripe-go/v84"
)

const usageEventName = "call_usage"

// StripeProcessor implements Processor on the Stripe API.
//
// Usage is metered through a billing meter named after usageEventName; the
// meter itself is provisioned once in the Stripe dashboard.
type StripeProcessor struct {
	client *stripe.Client

	// Hosted checkout redirect targets.
	SuccessURL string
	CancelURL  string
}

func NewStripeProcessor(secretKey, successURL, cancelURL string) *StripeProcessor {
	return &StripeProcessor{
		client:     stripe.NewClient(secretKey),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, accountID, email, name string) (string, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
		Metadata: map[string]string{
			"account_id": accountID,
		},
	}
	// One customer per account, even across retries.
	params.IdempotencyKey = stripe.String("customer:" + accountID)

	c, err := p.client.V1Customers.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (p *StripeProcessor) CreateSubscription(ctx context.Context, customerID string, s Settings) (string, error) {
	fixed, err := p.client.V1Prices.Create(ctx, &stripe.PriceCreateParams{
		Currency:   stripe.String(s.Currency),
		UnitAmount: stripe.Int64(s.MonthlyFeeMinor),
		Recurring: &stripe.PriceCreateRecurringParams{
			Interval: stripe.String("month"),
		},
		ProductData: &stripe.PriceCreateProductDataParams{
			Name: stripe.String("Voice agent platform"),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create fixed price: %w", err)
	}

	perMinute := s.BaseRatePerMinMinor * s.UsageMultiplier
	metered, err := p.client.V1Prices.Create(ctx, &stripe.PriceCreateParams{
		Currency:   stripe.String(s.Currency),
		UnitAmount: stripe.Int64(perMinute),
		Recurring: &stripe.PriceCreateRecurringParams{
			Interval:  stripe.String("month"),
			UsageType: stripe.String("metered"),
		},
		ProductData: &stripe.PriceCreateProductDataParams{
			Name: stripe.String("Voice agent call usage"),
		},
		Metadata: map[string]string{
			"type": usageEventName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create metered price: %w", err)
	}

	sub, err := p.client.V1Subscriptions.Create(ctx, &stripe.SubscriptionCreateParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{Price: stripe.String(fixed.ID)},
			{Price: stripe.String(metered.ID)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	return sub.ID, nil
}

func (p *StripeProcessor) ChargeSetupFee(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(currency),
		Customer:    stripe.String(customerID),
		Confirm:     stripe.Bool(true),
		OffSession:  stripe.Bool(true),
		Description: stripe.String("Account setup fee"),
	}
	params.IdempotencyKey = stripe.String("setup_fee:" + customerID)

	pi, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("charge setup fee: %w", err)
	}
	return pi.ID, nil
}

func (p *StripeProcessor) ReportUsage(ctx context.Context, customerID string, amountMinor int64, idempotencyKey string) error {
	params := &stripe.BillingMeterEventCreateParams{
		EventName:  stripe.String(usageEventName),
		Identifier: stripe.String(idempotencyKey),
		Payload: map[string]string{
			"stripe_customer_id": customerID,
			"value":              strconv.FormatInt(amountMinor, 10),
		},
	}
	if _, err := p.client.V1BillingMeterEvents.Create(ctx, params); err != nil {
		return fmt.Errorf("report usage: %w", err)
	}
	return nil
}

func (p *StripeProcessor) CheckoutURL(ctx context.Context, customerID string, amountMinor int64, currency string) (string, error) {
	sess, err := p.client.V1CheckoutSessions.Create(ctx, &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amountMinor),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String("Credit top-up"),
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProcessor) CheckoutStatus(ctx context.Context, sessionID string) (PaymentStatus, int64, error) {
	sess, err := p.client.V1CheckoutSessions.Retrieve(ctx, sessionID, nil)
	if err != nil {
		return "", 0, fmt.Errorf("retrieve checkout session: %w", err)
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		return PaymentStatusPaid, sess.AmountTotal, nil
	}
	return PaymentStatusPending, sess.AmountTotal, nil
}
