package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tavernapos/cashcore/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.open)
	r.Get("/{id}", h.get)
	r.Get("/{id}/balance", h.balance)
	r.Post("/{id}/entries", h.appendEntry)
	r.Get("/{id}/entries", h.listEntries)
	r.Post("/{id}/close", h.closeShift)
}

type openRequest struct {
	RestaurantID  string          `json:"restaurant_id"`
	Kind          ledger.Kind     `json:"kind"`
	Period        string          `json:"period"`
	OpeningAmount decimal.Decimal `json:"opening_amount"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.RestaurantID == "" {
		http.Error(w, "restaurant_id is required", http.StatusBadRequest)
		return
	}

	if req.Kind != ledger.KindDrawer && req.Kind != ledger.KindWallet {
		http.Error(w, "kind must be drawer or wallet", http.StatusBadRequest)
		return
	}

	l, err := h.svc.Open(r.Context(), ledger.OpenParams{
		RestaurantID:  req.RestaurantID,
		Kind:          req.Kind,
		Period:        req.Period,
		OpeningAmount: req.OpeningAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLedgerResponse(l))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	l, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toLedgerResponse(l))
}

type balanceResponse struct {
	LedgerID uuid.UUID       `json:"ledger_id"`
	Balance  decimal.Decimal `json:"balance"`
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	balance, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{LedgerID: id, Balance: balance})
}

type appendEntryRequest struct {
	Type   ledger.EntryType `json:"type"`
	Amount decimal.Decimal  `json:"amount"`
	Note   string           `json:"note"`
	Author string           `json:"author"`
}

func (h *Handler) appendEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	var req appendEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Author == "" {
		http.Error(w, "author is required", http.StatusBadRequest)
		return
	}

	e, err := h.svc.Append(r.Context(), id, ledger.AppendParams{
		Type:   req.Type,
		Amount: req.Amount,
		Note:   req.Note,
		Author: req.Author,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(e))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	var since *time.Time

	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}

		since = &t
	}

	entries, err := h.svc.Entries(r.Context(), id, since)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, out)
}

type closeRequest struct {
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
}

type closeResponse struct {
	Declared      decimal.Decimal `json:"declared"`
	Computed      decimal.Decimal `json:"computed"`
	Variance      decimal.Decimal `json:"variance"`
	AlreadyClosed bool            `json:"already_closed"`
}

func (h *Handler) closeShift(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.svc.CloseShift(r.Context(), id, req.DeclaredAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, closeResponse{
		Declared:      res.Declared,
		Computed:      res.Computed,
		Variance:      res.Variance,
		AlreadyClosed: res.AlreadyClosed,
	})
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
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
