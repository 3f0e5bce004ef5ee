package settlement

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tavernapos/cashcore/internal/settlement"
)

type Handler struct {
	svc *settlement.Service
}

func NewHandler(svc *settlement.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importFile)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "failed to parse form: "+err.Error(), http.StatusBadRequest)
		return
	}

	restaurantID := r.FormValue("restaurant_id")
	if restaurantID == "" {
		http.Error(w, "restaurant_id field is required", http.StatusBadRequest)
		return
	}

	walletID, err := uuid.Parse(r.FormValue("wallet_id"))
	if err != nil {
		http.Error(w, "wallet_id field must be a valid id", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	result, err := h.svc.Import(r.Context(), settlement.ImportParams{
		RestaurantID: restaurantID,
		WalletID:     walletID,
	}, file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
