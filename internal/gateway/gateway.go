// Package gateway puts every payment method behind one capability set:
// initialize, verify, refund and webhook authentication. Hosted processors
// talk JSON over HTTPS; manual and chat-assisted methods only produce
// instructions and wait for an operator.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/joao-fontenele/checkout-ledger/internal/domain"
)

type Kind string

const (
	// KindHosted redirects the customer to the processor and is verified
	// against its API.
	KindHosted Kind = "hosted"
	// KindManual is settled off-system and confirmed by an operator.
	KindManual Kind = "manual"
	// KindChat is arranged in a chat conversation and confirmed by an
	// operator.
	KindChat Kind = "chat"
)

// RequiresOperator reports whether payments of this kind only resolve via
// an explicit confirm or reject.
func (k Kind) RequiresOperator() bool {
	return k == KindManual || k == KindChat
}

type InitRequest struct {
	// Reference is the locally generated, globally unique payment reference.
	Reference      string
	OrderReference string
	Amount         int64
	Currency       string
	Email          string
	Phone          string
	CallbackURL    string
}

type InitResult struct {
	RedirectURL  string
	AccessCode   string
	Instructions string
	Raw          json.RawMessage
}

// VerifyResult is the processor's authoritative view of a transaction.
// Pending means the processor has not settled it yet; neither Success nor
// failure should be applied.
type VerifyResult struct {
	Success  bool
	Pending  bool
	Status   string
	Amount   int64
	Currency string
	Message  string
	Raw      json.RawMessage
}

type RefundRequest struct {
	Reference string
	Amount    int64
	Currency  string
	Reason    string
}

type RefundResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Event is the part of a webhook body the reconciler needs. Payment is
// false for event types that carry nothing to reconcile.
type Event struct {
	Type      string
	Reference string
	Payment   bool
}

type Gateway interface {
	Name() string
	Kind() Kind
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// VerifySignature authenticates a webhook from the raw body and headers.
	// It returns a *domain.SignatureError on mismatch.
	VerifySignature(body []byte, headers http.Header) error
	ParseEvent(body []byte) (*Event, error)
}

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the gateway for a payment method name.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, domain.NewValidationError("method", "unsupported payment method %q", name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
