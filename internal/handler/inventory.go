package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pronto-ballbot/internal/model"
	"pronto-ballbot/pkg/apierror"
	"pronto-ballbot/pkg/response"
)

// InventoryLister returns a user's grouped item counts.
type InventoryLister interface {
	List(ctx context.Context, userID string) ([]model.ItemCount, error)
}

// InventoryHandler serves read-only inventory lookups.
type InventoryHandler struct {
	lister InventoryLister
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(lister InventoryLister) *InventoryHandler {
	return &InventoryHandler{lister: lister}
}

// InventoryResponse is the body of GET /api/v1/inventory/{user_id}.
type InventoryResponse struct {
	UserID string            `json:"user_id"`
	Items  []model.ItemCount `json:"items"`
	Total  int               `json:"total"`
}

// GetInventory handles GET /api/v1/inventory/{user_id}
func (h *InventoryHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		response.Error(w, apierror.BadRequest("user_id is required"))
		return
	}

	items, err := h.lister.List(r.Context(), userID)
	if err != nil {
		response.Error(w, apierror.InternalError("failed to load inventory"))
		return
	}
	if items == nil {
		items = []model.ItemCount{}
	}

	total := 0
	for _, it := range items {
		total += it.Count
	}
	response.OK(w, InventoryResponse{UserID: userID, Items: items, Total: total})
}
