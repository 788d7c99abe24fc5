// Package sandbox is a local stand-in for the hosted card processors and the
// chat relay. It keeps transactions in memory and signs its webhooks the way
// the real processors do.
package sandbox

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/checkout-ledger/internal/gateway"
	"github.com/joao-fontenele/checkout-ledger/internal/money"
)

type transaction struct {
	ID        int64
	Gateway   string
	Reference string
	Amount    int64
	Currency  string
	Status    string
}

type Handler struct {
	mu     sync.Mutex
	txs    map[string]*transaction
	nextID int64

	publicURL       string
	webhookURL      string
	paystackSecret  string
	flutterwaveHash string
	client          *http.Client
	logger          *slog.Logger
}

type Config struct {
	// PublicURL is the sandbox's own address, used in checkout links.
	PublicURL       string
	WebhookURL      string
	PaystackSecret  string
	FlutterwaveHash string
}

func NewHandler(cfg Config, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		txs:             make(map[string]*transaction),
		publicURL:       cfg.PublicURL,
		webhookURL:      cfg.WebhookURL,
		paystackSecret:  cfg.PaystackSecret,
		flutterwaveHash: cfg.FlutterwaveHash,
		client:          client,
		logger:          logger,
	}
}

// Register mounts every sandbox route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /paystack/transaction/initialize", h.HandlePaystackInitialize)
	mux.HandleFunc("GET /paystack/transaction/verify/{reference}", h.HandlePaystackVerify)
	mux.HandleFunc("POST /paystack/refund", h.HandleRefund)
	mux.HandleFunc("POST /flutterwave/payments", h.HandleFlutterwaveInitialize)
	mux.HandleFunc("GET /flutterwave/transactions/verify_by_reference", h.HandleFlutterwaveVerify)
	mux.HandleFunc("POST /flutterwave/transactions/{id}/refund", h.HandleRefund)
	mux.HandleFunc("GET /pay/{reference}", h.HandlePay)
	mux.HandleFunc("POST /messages", h.HandleMessage)
}

func (h *Handler) open(gw, reference string, amount int64, currency string) *transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	tx := &transaction{ID: h.nextID, Gateway: gw, Reference: reference, Amount: amount, Currency: currency, Status: "pending"}
	h.txs[reference] = tx
	return tx
}

func (h *Handler) lookup(reference string) (transaction, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tx, ok := h.txs[reference]
	if !ok {
		return transaction{}, false
	}
	return *tx, true
}

type paystackInit struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

func (h *Handler) HandlePaystackInitialize(w http.ResponseWriter, r *http.Request) {
	var req paystackInit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" || req.Amount <= 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "Invalid transaction parameters"})
		return
	}
	if _, exists := h.lookup(req.Reference); exists {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "Duplicate Transaction Reference"})
		return
	}

	h.open(gateway.PaystackName, req.Reference, req.Amount, req.Currency)
	h.logger.Info("transaction initialized", "gateway", gateway.PaystackName, "reference", req.Reference, "amount", req.Amount)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  true,
		"message": "Authorization URL created",
		"data": map[string]string{
			"authorization_url": h.publicURL + "/pay/" + req.Reference,
			"access_code":       strconv.FormatInt(time.Now().UnixNano(), 36),
			"reference":         req.Reference,
		},
	})
}

func (h *Handler) HandlePaystackVerify(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.lookup(r.PathValue("reference"))
	if !ok {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "Transaction reference not found"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  true,
		"message": "Verification successful",
		"data": map[string]any{
			"status":           paystackStatus(tx.Status),
			"reference":        tx.Reference,
			"amount":           tx.Amount,
			"currency":         tx.Currency,
			"gateway_response": tx.Status,
		},
	})
}

type flutterwaveInit struct {
	TxRef    string          `json:"tx_ref"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h *Handler) HandleFlutterwaveInitialize(w http.ResponseWriter, r *http.Request) {
	var req flutterwaveInit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TxRef == "" || !req.Amount.IsPositive() {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"status": "error", "message": "Invalid payment parameters"})
		return
	}

	amount := money.FromMajor(req.Amount)
	h.open(gateway.FlutterwaveName, req.TxRef, amount, req.Currency)
	h.logger.Info("transaction initialized", "gateway", gateway.FlutterwaveName, "reference", req.TxRef, "amount", amount)

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Hosted Link",
		"data":    map[string]string{"link": h.publicURL + "/pay/" + req.TxRef},
	})
}

func (h *Handler) HandleFlutterwaveVerify(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.lookup(r.URL.Query().Get("tx_ref"))
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]any{"status": "error", "message": "No transaction was found for this id"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Transaction fetched successfully",
		"data": map[string]any{
			"id":       tx.ID,
			"tx_ref":   tx.Reference,
			"status":   flutterwaveStatus(tx.Status),
			"amount":   json.Number(money.ToMajor(tx.Amount).StringFixed(2)),
			"currency": tx.Currency,
		},
	})
}

func (h *Handler) HandleRefund(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("refund requested", "path", r.URL.Path)
	h.writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "Refund has been queued for processing"})
}

// HandlePay plays the customer at the hosted checkout page. ?outcome=failed
// declines the charge; anything else approves it.
func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")
	status := "success"
	if r.URL.Query().Get("outcome") == "failed" {
		status = "failed"
	}

	h.mu.Lock()
	tx, ok := h.txs[reference]
	if ok && tx.Status == "pending" {
		tx.Status = status
	}
	var snapshot transaction
	if ok {
		snapshot = *tx
	}
	h.mu.Unlock()

	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transaction"})
		return
	}

	// Paystack only calls back for successful charges.
	callback := snapshot.Gateway != gateway.PaystackName || snapshot.Status == "success"
	if h.webhookURL != "" && callback {
		go h.sendWebhook(context.WithoutCancel(r.Context()), snapshot)
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"reference": reference, "status": snapshot.Status})
}

func (h *Handler) sendWebhook(ctx context.Context, tx transaction) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var body []byte
	var err error
	headers := http.Header{}
	switch tx.Gateway {
	case gateway.PaystackName:
		body, err = json.Marshal(map[string]any{
			"event": "charge.success",
			"data":  map[string]any{"reference": tx.Reference, "amount": tx.Amount, "currency": tx.Currency, "status": paystackStatus(tx.Status)},
		})
		headers.Set(gateway.PaystackSignatureHeader, hex.EncodeToString(gateway.PaystackSignature(h.paystackSecret, body)))
	case gateway.FlutterwaveName:
		body, err = json.Marshal(map[string]any{
			"event": "charge.completed",
			"data":  map[string]any{"id": tx.ID, "tx_ref": tx.Reference, "status": flutterwaveStatus(tx.Status)},
		})
		headers.Set(gateway.FlutterwaveSignatureHeader, h.flutterwaveHash)
	}
	if err != nil {
		h.logger.Error("failed to encode webhook", "error", err, "reference", tx.Reference)
		return
	}

	url := fmt.Sprintf("%s/%s", h.webhookURL, tx.Gateway)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		h.logger.Error("failed to create webhook request", "error", err)
		return
	}
	req.Header = headers
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error("failed to deliver webhook", "error", err, "reference", tx.Reference)
		return
	}
	_ = resp.Body.Close()

	h.logger.Info("webhook delivered", "gateway", tx.Gateway, "reference", tx.Reference, "status", resp.StatusCode)
}

type messageRequest struct {
	Kind           string `json:"kind"`
	OrderReference string `json:"order_reference"`
	To             string `json:"to"`
	Text           string `json:"text"`
}

// HandleMessage accepts relayed customer notifications.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	delay := time.Duration(50+rand.Intn(151)) * time.Millisecond
	time.Sleep(delay)

	h.logger.Info("message sent", "to", req.To, "kind", req.Kind, "order_reference", req.OrderReference)

	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

func paystackStatus(s string) string {
	if s == "pending" {
		return "ongoing"
	}
	return s
}

func flutterwaveStatus(s string) string {
	if s == "success" {
		return "successful"
	}
	return s
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
