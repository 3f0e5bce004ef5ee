package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
	"github.com/tavernapos/cashcore/internal/payment"
)

type Handler struct {
	svc *payment.Service
}

func NewHandler(svc *payment.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.registerDirect)
	r.Get("/{key}", h.get)
}

// WebhookRoutes is mounted separately: the gateway callback must stay
// reachable without the content-type constraints of the POS API.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/gateway", h.gatewayWebhook)
}

// registerDirectRequest registers a sale settled at the counter. The POS
// client generates Nonce once per sale and resends it unchanged on retry;
// the idempotency key is derived server-side from it.
type registerDirectRequest struct {
	Nonce        string           `json:"nonce"`
	SoldAt       time.Time        `json:"sold_at"`
	RestaurantID string           `json:"restaurant_id"`
	LedgerID     uuid.UUID        `json:"ledger_id"`
	Amount       decimal.Decimal  `json:"amount"`
	Currency     payment.Currency `json:"currency"`
	Author       string           `json:"author"`
}

func (h *Handler) registerDirect(w http.ResponseWriter, r *http.Request) {
	var req registerDirectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Nonce == "" {
		http.Error(w, "nonce is required", http.StatusBadRequest)
		return
	}

	if req.SoldAt.IsZero() {
		http.Error(w, "sold_at is required", http.StatusBadRequest)
		return
	}

	if req.Currency != payment.CurrencyCash && req.Currency != payment.CurrencyVirtual {
		http.Error(w, "currency must be cash or virtual", http.StatusBadRequest)
		return
	}

	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusUnprocessableEntity)
		return
	}

	rec, err := h.svc.RegisterDirect(r.Context(), payment.DirectParams{
		IdempotencyKey: payment.DirectKey(req.RestaurantID, req.SoldAt, req.Nonce),
		RestaurantID:   req.RestaurantID,
		LedgerID:       req.LedgerID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Author:         req.Author,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// gatewayWebhookRequest is the gateway's callback payload. RestaurantID and
// LedgerID are the merchant context the callback was registered with;
// identity is always explicit, never read from ambient state.
type gatewayWebhookRequest struct {
	ExternalReference string          `json:"externalReference"`
	PaymentID         string          `json:"paymentId"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	RestaurantID      string          `json:"restaurantId"`
	LedgerID          uuid.UUID       `json:"ledgerId"`
	Currency          string          `json:"currency"`
}

func (h *Handler) gatewayWebhook(w http.ResponseWriter, r *http.Request) {
	var req gatewayWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := mapGatewayStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	currency := payment.CurrencyVirtual
	if req.Currency == string(payment.CurrencyCash) {
		currency = payment.CurrencyCash
	}

	rec, err := h.svc.HandleNotification(r.Context(), payment.Notification{
		IdempotencyKey: payment.GatewayKey(req.RestaurantID, req.ExternalReference, req.PaymentID),
		RestaurantID:   req.RestaurantID,
		LedgerID:       req.LedgerID,
		Amount:         req.Amount,
		Currency:       currency,
		Status:         status,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// mapGatewayStatus translates the gateway's callback vocabulary onto
// payment states.
func mapGatewayStatus(s string) (payment.Status, error) {
	switch strings.ToLower(s) {
	case "approved", "settled", "confirmed", "captured":
		return payment.StatusApproved, nil
	case "rejected", "refused", "failed", "cancelled":
		return payment.StatusRejected, nil
	case "pending", "created", "authorised", "authorized":
		return payment.StatusPending, nil
	default:
		return "", fmt.Errorf("unknown gateway status %q", s)
	}
}

type recordResponse struct {
	IdempotencyKey string           `json:"idempotency_key"`
	RestaurantID   string           `json:"restaurant_id"`
	LedgerID       uuid.UUID        `json:"ledger_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       payment.Currency `json:"currency"`
	Status         payment.Status   `json:"status"`
	Source         payment.Source   `json:"source"`
	LinkedEntryID  *uuid.UUID       `json:"linked_entry_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func toRecordResponse(rec *payment.Record) recordResponse {
	return recordResponse{
		IdempotencyKey: rec.IdempotencyKey,
		RestaurantID:   rec.RestaurantID,
		LedgerID:       rec.LedgerID,
		Amount:         rec.Amount,
		Currency:       rec.Currency,
		Status:         rec.Status,
		Source:         rec.Source,
		LinkedEntryID:  rec.LinkedEntryID,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	var conflict *payment.StateConflictError

	switch {
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, payment.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrMissingLedger):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ledger.ErrClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrWriteConflict):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
