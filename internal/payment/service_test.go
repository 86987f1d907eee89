package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/pricing"
)

type mockOrderRepository struct {
	getByIDFunc    func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	setPaymentFunc func(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) error
}

func (m *mockOrderRepository) Create(ctx context.Context, o *order.Order) error { return nil }

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepository) ListAll(ctx context.Context, limit, offset int) ([]order.Order, int, error) {
	return nil, 0, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status order.OrderStatus, event order.StatusEvent) error {
	return nil
}

func (m *mockOrderRepository) SetPaymentInfo(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) error {
	if m.setPaymentFunc != nil {
		return m.setPaymentFunc(ctx, orderID, info)
	}
	return nil
}

type mockSettlementRepository struct {
	debitFunc    func(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	markPaidFunc func(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error)
	recordFunc   func(ctx context.Context, orderID uuid.UUID, providerStatus, providerRef string) error
}

func (m *mockSettlementRepository) DebitWalletAndMarkPaid(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	return m.debitFunc(ctx, orderID, userID, amount)
}

func (m *mockSettlementRepository) MarkPaidIfPending(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error) {
	return m.markPaidFunc(ctx, orderID, providerRef)
}

func (m *mockSettlementRepository) RecordProviderOutcome(ctx context.Context, orderID uuid.UUID, providerStatus, providerRef string) error {
	return m.recordFunc(ctx, orderID, providerStatus, providerRef)
}

type mockGateway struct {
	createIntentFunc func(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error)
	parseWebhookFunc func(payload []byte, signature string) (*payment.ProviderEvent, error)
}

func (m *mockGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error) {
	return m.createIntentFunc(ctx, amountMinor, currency, metadata)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.ProviderEvent, error) {
	return m.parseWebhookFunc(payload, signature)
}

type mockSender struct {
	sent []notify.Notification
}

func (m *mockSender) SendOrderStatus(ctx context.Context, n notify.Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

func pendingOrder(ownerID uuid.UUID, total string) *order.Order {
	orderID, _ := uuid.NewV4()
	t := decimal.RequireFromString(total)
	return &order.Order{
		ID:            orderID,
		UserID:        &ownerID,
		CustomerEmail: "jess@example.com",
		CustomerName:  "Jess",
		Status:        order.StatusPending,
		Price:         pricing.Snapshot{Subtotal: t, Discount: decimal.Zero, Shipping: decimal.Zero, Tax: decimal.Zero, Total: t},
		Payment:       order.PaymentInfo{Method: order.MethodStripe, ProviderStatus: "pending"},
	}
}

func TestService_Settle_Preconditions(t *testing.T) {
	ownerID, _ := uuid.NewV4()
	strangerID, _ := uuid.NewV4()
	o := pendingOrder(ownerID, "150")

	newService := func(stored *order.Order, getErr error) payment.Service {
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return stored, getErr
		}}
		return payment.NewService(repo, &mockSettlementRepository{}, &mockGateway{}, &mockSender{}, "usd", "/payments/paylater")
	}

	t.Run("order_not_found", func(t *testing.T) {
		svc := newService(nil, order.ErrOrderNotFound)
		_, err := svc.Settle(context.Background(), o.ID, ownerID, "stripe")
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("not_owner", func(t *testing.T) {
		svc := newService(o, nil)
		_, err := svc.Settle(context.Background(), o.ID, strangerID, "stripe")
		assert.ErrorIs(t, err, order.ErrForbidden)
	})

	t.Run("not_pending", func(t *testing.T) {
		paid := pendingOrder(ownerID, "150")
		paid.Status = order.StatusPaid
		svc := newService(paid, nil)
		_, err := svc.Settle(context.Background(), paid.ID, ownerID, "stripe")
		assert.ErrorIs(t, err, payment.ErrOrderNotPending)
	})

	t.Run("unknown_method", func(t *testing.T) {
		svc := newService(o, nil)
		_, err := svc.Settle(context.Background(), o.ID, ownerID, "barter")
		assert.ErrorIs(t, err, order.ErrInvalidPaymentMethod)
	})
}

func TestService_Settle_Stripe(t *testing.T) {
	ownerID, _ := uuid.NewV4()
	o := pendingOrder(ownerID, "149.99")

	var gotAmount int64
	var gotMetadata map[string]string
	gateway := &mockGateway{
		createIntentFunc: func(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*payment.Intent, error) {
			gotAmount = amountMinor
			gotMetadata = metadata
			return &payment.Intent{ID: "pi_123", ClientSecret: "pi_123_secret", Status: "requires_payment_method"}, nil
		},
	}

	var storedInfo order.PaymentInfo
	repo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
		setPaymentFunc: func(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) error {
			storedInfo = info
			return nil
		},
	}

	svc := payment.NewService(repo, &mockSettlementRepository{}, gateway, &mockSender{}, "usd", "/payments/paylater")

	result, err := svc.Settle(context.Background(), o.ID, ownerID, "stripe")
	require.NoError(t, err)

	assert.Equal(t, int64(14999), gotAmount)
	assert.Equal(t, o.ID.String(), gotMetadata["order_id"])
	assert.Equal(t, "pi_123_secret", result.ClientSecret)
	// Intent creation never settles the order; the webhook does.
	assert.Equal(t, order.StatusPending, result.OrderStatus)
	assert.Equal(t, "pi_123", storedInfo.ProviderRef)
}

func TestService_Settle_Wallet(t *testing.T) {
	ownerID, _ := uuid.NewV4()

	t.Run("insufficient_balance", func(t *testing.T) {
		o := pendingOrder(ownerID, "150")
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil }}
		settlements := &mockSettlementRepository{
			debitFunc: func(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
				return decimal.NewFromInt(100), payment.ErrInsufficientFunds
			},
		}
		sender := &mockSender{}
		svc := payment.NewService(repo, settlements, &mockGateway{}, sender, "usd", "/payments/paylater")

		_, err := svc.Settle(context.Background(), o.ID, ownerID, "wallet")
		require.ErrorIs(t, err, payment.ErrInsufficientWallet)

		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "100", appErr.Details["balance"])
		assert.Equal(t, "150", appErr.Details["required"])
		assert.Empty(t, sender.sent)
	})

	t.Run("success", func(t *testing.T) {
		o := pendingOrder(ownerID, "150")
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil }}
		settlements := &mockSettlementRepository{
			debitFunc: func(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
				assert.True(t, amount.Equal(decimal.NewFromInt(150)))
				return decimal.NewFromInt(500), nil
			},
		}
		sender := &mockSender{}
		svc := payment.NewService(repo, settlements, &mockGateway{}, sender, "usd", "/payments/paylater")

		result, err := svc.Settle(context.Background(), o.ID, ownerID, "wallet")
		require.NoError(t, err)

		assert.Equal(t, order.StatusPaid, result.OrderStatus)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, string(order.StatusPaid), sender.sent[0].Status)
	})
}

func TestService_Settle_CODAndPayLater(t *testing.T) {
	ownerID, _ := uuid.NewV4()

	t.Run("cod", func(t *testing.T) {
		o := pendingOrder(ownerID, "80")
		var storedInfo order.PaymentInfo
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil },
			setPaymentFunc: func(ctx context.Context, orderID uuid.UUID, info order.PaymentInfo) error {
				storedInfo = info
				return nil
			},
		}
		svc := payment.NewService(repo, &mockSettlementRepository{}, &mockGateway{}, &mockSender{}, "usd", "/payments/paylater")

		result, err := svc.Settle(context.Background(), o.ID, ownerID, "cod")
		require.NoError(t, err)

		assert.Equal(t, order.StatusPending, result.OrderStatus)
		assert.Equal(t, "pending_cod", storedInfo.ProviderStatus)
	})

	t.Run("paylater_returns_redirect", func(t *testing.T) {
		o := pendingOrder(ownerID, "80")
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil }}
		svc := payment.NewService(repo, &mockSettlementRepository{}, &mockGateway{}, &mockSender{}, "usd", "/payments/paylater")

		result, err := svc.Settle(context.Background(), o.ID, ownerID, "paylater")
		require.NoError(t, err)

		assert.Equal(t, order.StatusPending, result.OrderStatus)
		assert.Equal(t, "/payments/paylater/"+o.ID.String(), result.RedirectURL)
	})
}

func TestService_HandleWebhook(t *testing.T) {
	ownerID, _ := uuid.NewV4()
	o := pendingOrder(ownerID, "150")

	t.Run("invalid_signature", func(t *testing.T) {
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return nil, payment.ErrInvalidSignature
		}}
		svc := payment.NewService(&mockOrderRepository{}, &mockSettlementRepository{}, gateway, &mockSender{}, "usd", "")

		_, err := svc.HandleWebhook(context.Background(), "bad", []byte("{}"))
		assert.ErrorIs(t, err, payment.ErrInvalidSignature)
	})

	t.Run("missing_order_id", func(t *testing.T) {
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return &payment.ProviderEvent{Outcome: payment.EventSucceeded, IntentID: "pi_123"}, nil
		}}
		svc := payment.NewService(&mockOrderRepository{}, &mockSettlementRepository{}, gateway, &mockSender{}, "usd", "")

		_, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		assert.ErrorIs(t, err, payment.ErrMissingOrderID)
	})

	t.Run("success_marks_paid_and_notifies", func(t *testing.T) {
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return &payment.ProviderEvent{Outcome: payment.EventSucceeded, IntentID: "pi_123", OrderID: o.ID.String()}, nil
		}}
		settlements := &mockSettlementRepository{
			markPaidFunc: func(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error) {
				assert.Equal(t, o.ID, orderID)
				assert.Equal(t, "pi_123", providerRef)
				return true, nil
			},
		}
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil }}
		sender := &mockSender{}
		svc := payment.NewService(repo, settlements, gateway, sender, "usd", "")

		ack, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		require.NoError(t, err)

		assert.True(t, ack.Received)
		assert.False(t, ack.AlreadyProcessed)
		require.Len(t, sender.sent, 1)
		assert.Equal(t, string(order.StatusPaid), sender.sent[0].Status)
	})

	t.Run("duplicate_delivery_is_idempotent", func(t *testing.T) {
		calls := 0
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return &payment.ProviderEvent{Outcome: payment.EventSucceeded, IntentID: "pi_123", OrderID: o.ID.String()}, nil
		}}
		settlements := &mockSettlementRepository{
			markPaidFunc: func(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error) {
				calls++
				// First delivery settles; the second misses the conditional
				// update because the order already left pending.
				return calls == 1, nil
			},
		}
		repo := &mockOrderRepository{getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return o, nil }}
		sender := &mockSender{}
		svc := payment.NewService(repo, settlements, gateway, sender, "usd", "")

		first, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		require.NoError(t, err)
		second, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		require.NoError(t, err)

		assert.False(t, first.AlreadyProcessed)
		assert.True(t, second.AlreadyProcessed)
		// Exactly one notification despite two deliveries.
		assert.Len(t, sender.sent, 1)
	})

	t.Run("failed_event_records_outcome_only", func(t *testing.T) {
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return &payment.ProviderEvent{Outcome: payment.EventFailed, IntentID: "pi_123", OrderID: o.ID.String()}, nil
		}}
		recorded := false
		settlements := &mockSettlementRepository{
			recordFunc: func(ctx context.Context, orderID uuid.UUID, providerStatus, providerRef string) error {
				recorded = true
				assert.Equal(t, "failed", providerStatus)
				return nil
			},
			markPaidFunc: func(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error) {
				t.Fatal("failed event must not mark the order paid")
				return false, nil
			},
		}
		sender := &mockSender{}
		svc := payment.NewService(&mockOrderRepository{}, settlements, gateway, sender, "usd", "")

		ack, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		require.NoError(t, err)

		assert.True(t, ack.Received)
		assert.True(t, recorded)
		assert.Empty(t, sender.sent)
	})

	t.Run("untracked_event_is_acked", func(t *testing.T) {
		gateway := &mockGateway{parseWebhookFunc: func(payload []byte, signature string) (*payment.ProviderEvent, error) {
			return nil, nil
		}}
		svc := payment.NewService(&mockOrderRepository{}, &mockSettlementRepository{}, gateway, &mockSender{}, "usd", "")

		ack, err := svc.HandleWebhook(context.Background(), "sig", []byte("{}"))
		require.NoError(t, err)
		assert.True(t, ack.Received)
	})
}
