package report

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tavernapos/cashcore/internal/ledger"
	"github.com/tavernapos/cashcore/internal/payment"
	"github.com/tavernapos/cashcore/internal/report"
)

type Handler struct {
	svc *report.Service
}

func NewHandler(svc *report.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/ledgers/{id}/entries", h.entries)
	r.Get("/ledgers/{id}/summary", h.summary)
	r.Get("/payments", h.payments)
}

func (h *Handler) entries(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	limit, offset := parsePagination(r)

	entries, err := h.svc.Entries(r.Context(), id, ledger.RangeFilter{
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	})
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

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ledger id", http.StatusBadRequest)
		return
	}

	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		http.Error(w, "restaurant_id is required", http.StatusBadRequest)
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	summary, err := h.svc.ShiftSummary(r.Context(), restaurantID, id, from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.URL.Query().Get("restaurant_id")
	if restaurantID == "" {
		http.Error(w, "restaurant_id is required", http.StatusBadRequest)
		return
	}

	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}

	limit, offset := parsePagination(r)

	records, err := h.svc.Payments(r.Context(), restaurantID, payment.RangeFilter{
		From:   from,
		To:     to,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}

	writeJSON(w, http.StatusOK, out)
}

func parseRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	var from, to *time.Time

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "from must be RFC 3339", http.StatusBadRequest)
			return nil, nil, false
		}

		from = &t
	}

	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "to must be RFC 3339", http.StatusBadRequest)
			return nil, nil, false
		}

		to = &t
	}

	return from, to, true
}

func parsePagination(r *http.Request) (int, int) {
	limit := 100
	offset := 0

	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
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
