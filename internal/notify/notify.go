package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notification describes an order status change sent to the customer.
type Notification struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Sender delivers order status notifications. Delivery is best-effort:
// callers log failures and move on, they never surface into the request path.
type Sender interface {
	SendOrderStatus(ctx context.Context, n Notification) error
}

// Dispatch sends a notification and swallows the error after logging it.
func Dispatch(ctx context.Context, s Sender, n Notification) {
	if err := s.SendOrderStatus(ctx, n); err != nil {
		log.Warn().
			Err(err).
			Str("order_id", n.OrderID).
			Str("status", n.Status).
			Msg("notify: failed to send order status notification")
	}
}

type httpSender struct {
	url    string
	client *http.Client
}

// NewHTTPSender posts notifications to the notification service endpoint.
func NewHTTPSender(url string, timeout time.Duration) Sender {
	return &httpSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *httpSender) SendOrderStatus(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notify: notification service responded with %d", resp.StatusCode)
	}

	return nil
}

type noopSender struct{}

// NewNoopSender is used when no notification endpoint is configured.
func NewNoopSender() Sender { return noopSender{} }

func (noopSender) SendOrderStatus(context.Context, Notification) error { return nil }
