package domain

import "time"

type NotificationKind string

const (
	NotificationOrderConfirmed NotificationKind = "order.confirmed"
	NotificationOrderStatus    NotificationKind = "order.status_changed"
	NotificationOrderCancelled NotificationKind = "order.cancelled"
	NotificationOrderPaid      NotificationKind = "order.paid"
	NotificationPaymentFailed  NotificationKind = "payment.failed"
	NotificationRefundDue      NotificationKind = "payment.refund_due"
)

// Notification is the customer-facing message the core produces. Delivery
// belongs to whoever consumes it.
type Notification struct {
	ID             string           `json:"id"`
	Kind           NotificationKind `json:"kind"`
	OrderID        string           `json:"order_id"`
	OrderReference string           `json:"order_reference"`
	Recipient      string           `json:"recipient"`
	Email          string           `json:"email,omitempty"`
	Text           string           `json:"text"`
	DeepLink       string           `json:"deep_link"`
	CreatedAt      time.Time        `json:"created_at"`
}
