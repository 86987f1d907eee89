package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
)

var (
	ErrInvalidSignature = apperr.New("INVALID_SIGNATURE", apperr.KindValidation, "webhook signature verification failed")
	ErrMissingOrderID   = apperr.New("MISSING_ORDER_ID", apperr.KindValidation, "webhook event carries no order id")
)

// Intent is the provider-side payment intent created for an order.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// event outcomes as this core understands them.
const (
	EventSucceeded = "succeeded"
	EventFailed    = "failed"
)

// ProviderEvent is a parsed, signature-verified webhook event.
type ProviderEvent struct {
	Outcome  string // EventSucceeded or EventFailed
	IntentID string
	OrderID  string // correlation id from the intent metadata, may be empty
}

// Gateway abstracts the external payment provider. The concrete client is
// constructed once at startup and injected; nothing in this package reaches
// for a process-wide provider handle.
type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error)
	ParseWebhook(payload []byte, signature string) (*ProviderEvent, error)
}

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	intents       stripeIntentAPI
	webhookSecret string
}

// NewStripeGateway builds a Gateway over the Stripe API. The intents API can
// be swapped out in tests.
func NewStripeGateway(apiKey, webhookSecret string) Gateway {
	sc := client.New(apiKey, nil)
	return &stripeGateway{intents: sc.PaymentIntents, webhookSecret: webhookSecret}
}

func (g *stripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
	}
	params.Context = ctx
	if len(metadata) > 0 {
		params.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	return &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

func (g *stripeGateway) ParseWebhook(payload []byte, signature string) (*ProviderEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, ErrInvalidSignature.WithCause(err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("stripe: decode webhook payment intent: %w", err)
	}

	outcome := EventSucceeded
	if event.Type == "payment_intent.payment_failed" {
		outcome = EventFailed
	}

	return &ProviderEvent{
		Outcome:  outcome,
		IntentID: intent.ID,
		OrderID:  intent.Metadata["order_id"],
	}, nil
}
