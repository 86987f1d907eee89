package payment

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

var (
	ErrOrderNotPending    = apperr.New("INVALID_STATUS", apperr.KindBusinessRule, "order is not awaiting payment")
	ErrInsufficientWallet = apperr.New("INSUFFICIENT_WALLET_BALANCE", apperr.KindBusinessRule, "wallet balance is insufficient")
)

// SettlementResult tells the client how to proceed for the chosen method.
type SettlementResult struct {
	OrderID      uuid.UUID           `json:"order_id"`
	Method       order.PaymentMethod `json:"method"`
	OrderStatus  order.OrderStatus   `json:"order_status"`
	ClientSecret string              `json:"client_secret,omitempty"`
	RedirectURL  string              `json:"redirect_url,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// WebhookAck is the acknowledgment returned to the provider.
type WebhookAck struct {
	Received         bool `json:"received"`
	AlreadyProcessed bool `json:"already_processed,omitempty"`
}

type Service interface {
	Settle(ctx context.Context, orderID, userID uuid.UUID, method string) (*SettlementResult, error)
	HandleWebhook(ctx context.Context, signature string, payload []byte) (*WebhookAck, error)
}

type service struct {
	orders       order.Repository
	repo         Repository
	gateway      Gateway
	notifier     notify.Sender
	currency     string
	redirectBase string
}

func NewService(orders order.Repository, repo Repository, gateway Gateway, notifier notify.Sender, currency, redirectBase string) Service {
	if currency == "" {
		currency = "usd"
	}
	return &service{
		orders:       orders,
		repo:         repo,
		gateway:      gateway,
		notifier:     notifier,
		currency:     currency,
		redirectBase: redirectBase,
	}
}

func (s *service) Settle(ctx context.Context, orderID, userID uuid.UUID, rawMethod string) (*SettlementResult, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(userID) {
		return nil, order.ErrForbidden
	}
	if o.Status != order.StatusPending {
		return nil, ErrOrderNotPending.WithDetails(map[string]any{"status": string(o.Status)})
	}

	method, ok := order.NormalizePaymentMethod(rawMethod)
	if !ok {
		return nil, order.ErrInvalidPaymentMethod.WithDetails(map[string]any{"payment_method": rawMethod})
	}

	switch method {
	case order.MethodStripe:
		return s.settleStripe(ctx, o)
	case order.MethodWallet:
		return s.settleWallet(ctx, o, userID)
	case order.MethodCOD:
		return s.settleCOD(ctx, o)
	default:
		return s.settlePayLater(ctx, o)
	}
}

func (s *service) settleStripe(ctx context.Context, o *order.Order) (*SettlementResult, error) {
	amountMinor := o.Price.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	intent, err := s.gateway.CreateIntent(ctx, amountMinor, s.currency, map[string]string{
		"order_id": o.ID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("payment: failed to create payment intent: %w", err)
	}

	info := order.PaymentInfo{
		Method:         order.MethodStripe,
		ProviderRef:    intent.ID,
		ProviderStatus: intent.Status,
	}
	if err := s.orders.SetPaymentInfo(ctx, o.ID, info); err != nil {
		return nil, fmt.Errorf("payment: failed to store payment intent: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Str("intent_id", intent.ID).Msg("payment: payment intent created")

	// Order stays pending until the provider confirms via webhook.
	return &SettlementResult{
		OrderID:      o.ID,
		Method:       order.MethodStripe,
		OrderStatus:  order.StatusPending,
		ClientSecret: intent.ClientSecret,
	}, nil
}

func (s *service) settleWallet(ctx context.Context, o *order.Order, userID uuid.UUID) (*SettlementResult, error) {
	balance, err := s.repo.DebitWalletAndMarkPaid(ctx, o.ID, userID, o.Price.Total)
	if err != nil {
		if IsInsufficientFunds(err) {
			return nil, ErrInsufficientWallet.WithDetails(map[string]any{
				"balance":  balance.String(),
				"required": o.Price.Total.String(),
			})
		}
		return nil, fmt.Errorf("payment: wallet settlement failed: %w", err)
	}

	log.Info().Stringer("order_id", o.ID).Str("amount", o.Price.Total.String()).Msg("payment: wallet settlement succeeded")

	notify.Dispatch(ctx, s.notifier, notify.Notification{
		OrderID: o.ID.String(),
		Status:  string(order.StatusPaid),
		Email:   o.CustomerEmail,
		Name:    o.CustomerName,
	})

	return &SettlementResult{
		OrderID:     o.ID,
		Method:      order.MethodWallet,
		OrderStatus: order.StatusPaid,
	}, nil
}

func (s *service) settleCOD(ctx context.Context, o *order.Order) (*SettlementResult, error) {
	info := order.PaymentInfo{Method: order.MethodCOD, ProviderStatus: "pending_cod"}
	if err := s.orders.SetPaymentInfo(ctx, o.ID, info); err != nil {
		return nil, fmt.Errorf("payment: failed to record cash-on-delivery: %w", err)
	}

	// Settlement completes when the seller marks the order delivered.
	return &SettlementResult{
		OrderID:     o.ID,
		Method:      order.MethodCOD,
		OrderStatus: order.StatusPending,
		Message:     "payment due on delivery",
	}, nil
}

func (s *service) settlePayLater(ctx context.Context, o *order.Order) (*SettlementResult, error) {
	info := order.PaymentInfo{Method: order.MethodPayLater, ProviderStatus: "pending"}
	if err := s.orders.SetPaymentInfo(ctx, o.ID, info); err != nil {
		return nil, fmt.Errorf("payment: failed to record deferred payment: %w", err)
	}

	// Finalization arrives out of band once the customer completes the
	// redirect flow.
	return &SettlementResult{
		OrderID:     o.ID,
		Method:      order.MethodPayLater,
		OrderStatus: order.StatusPending,
		RedirectURL: fmt.Sprintf("%s/%s", s.redirectBase, o.ID),
	}, nil
}

func (s *service) HandleWebhook(ctx context.Context, signature string, payload []byte) (*WebhookAck, error) {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return nil, err
	}
	if event == nil {
		// Event type this core does not track; acknowledge so the provider
		// stops retrying.
		return &WebhookAck{Received: true}, nil
	}

	if event.OrderID == "" {
		return nil, ErrMissingOrderID
	}
	orderID, err := uuid.FromString(event.OrderID)
	if err != nil {
		return nil, ErrMissingOrderID.WithCause(err)
	}

	switch event.Outcome {
	case EventSucceeded:
		applied, err := s.repo.MarkPaidIfPending(ctx, orderID, event.IntentID)
		if err != nil {
			return nil, err
		}
		if !applied {
			log.Info().Stringer("order_id", orderID).Str("intent_id", event.IntentID).Msg("payment: duplicate webhook delivery, already processed")
			return &WebhookAck{Received: true, AlreadyProcessed: true}, nil
		}

		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("payment: failed to load order for webhook notification")
		} else {
			notify.Dispatch(ctx, s.notifier, notify.Notification{
				OrderID: o.ID.String(),
				Status:  string(order.StatusPaid),
				Email:   o.CustomerEmail,
				Name:    o.CustomerName,
			})
		}

		log.Info().Stringer("order_id", orderID).Str("intent_id", event.IntentID).Msg("payment: order marked paid from webhook")
		return &WebhookAck{Received: true}, nil

	case EventFailed:
		if err := s.repo.RecordProviderOutcome(ctx, orderID, "failed", event.IntentID); err != nil {
			return nil, err
		}
		log.Warn().Stringer("order_id", orderID).Str("intent_id", event.IntentID).Msg("payment: provider reported failure")
		return &WebhookAck{Received: true}, nil

	default:
		return &WebhookAck{Received: true}, nil
	}
}
