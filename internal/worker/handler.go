package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
	"github.com/joao-fontenele/checkout-ledger/internal/messaging"
)

// NotificationRelay forwards notification envelopes from the broker to the
// chat relay's HTTP API.
type NotificationRelay struct {
	relayURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNotificationRelay(relayURL string, client *http.Client, logger *slog.Logger) *NotificationRelay {
	return &NotificationRelay{
		relayURL:   relayURL,
		httpClient: client,
		logger:     logger,
	}
}

type relayMessage struct {
	Kind           string `json:"kind"`
	OrderReference string `json:"order_reference"`
	To             string `json:"to"`
	Email          string `json:"email,omitempty"`
	Text           string `json:"text"`
	Link           string `json:"link"`
}

var notificationKinds = map[string]bool{
	string(domain.NotificationOrderConfirmed): true,
	string(domain.NotificationOrderStatus):    true,
	string(domain.NotificationOrderCancelled): true,
	string(domain.NotificationOrderPaid):      true,
	string(domain.NotificationPaymentFailed):  true,
}

// Handle relays one notification. Messages the relay refuses outright are
// logged and dropped; transport errors and 5xx answers are returned so the
// message is redelivered.
func (h *NotificationRelay) Handle(ctx context.Context, env messaging.Envelope) error {
	if !notificationKinds[env.EventType] {
		h.logger.Debug("skipping non-notification event", "event_type", env.EventType, "event_id", env.EventID)
		return nil
	}

	n, err := messaging.Decode[domain.Notification](env)
	if err != nil {
		h.logger.Error("dropping malformed notification", "error", err, "event_id", env.EventID)
		return nil
	}

	if strings.TrimSpace(n.Recipient) == "" && n.Email == "" {
		h.logger.Warn("notification has no recipient", "kind", n.Kind, "order_reference", n.OrderReference)
		return nil
	}

	h.logger.Info("relaying notification", "kind", n.Kind, "order_reference", n.OrderReference, "notification_id", n.ID)

	status, err := h.send(ctx, n)
	if err != nil {
		h.logger.Error("failed to relay notification", "error", err, "order_reference", n.OrderReference)
		return fmt.Errorf("relay notification %s: %w", n.ID, err)
	}

	if status >= 400 && status < 500 {
		h.logger.Error("relay refused notification", "status", status, "order_reference", n.OrderReference, "notification_id", n.ID)
		return nil
	}
	if status >= 500 {
		return fmt.Errorf("relay returned status %d for notification %s", status, n.ID)
	}

	h.logger.Info("notification relayed", "kind", n.Kind, "order_reference", n.OrderReference)
	return nil
}

func (h *NotificationRelay) send(ctx context.Context, n domain.Notification) (int, error) {
	data, err := json.Marshal(relayMessage{
		Kind:           string(n.Kind),
		OrderReference: n.OrderReference,
		To:             n.Recipient,
		Email:          n.Email,
		Text:           n.Text,
		Link:           n.DeepLink,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.relayURL, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode, nil
}
