package product

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/invoicer/internal/http/respond"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

type Handler struct {
	stock *stock.Adjuster
}

func NewHandler(adjuster *stock.Adjuster) *Handler {
	return &Handler{stock: adjuster}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)
}

type productResponse struct {
	ID        uuid.UUID    `json:"id"`
	SKU       string       `json:"sku"`
	Name      string       `json:"name"`
	Stock     string       `json:"stock"`
	MinStock  string       `json:"min_stock"`
	Status    stock.Status `json:"status"`
	LowStock  bool         `json:"low_stock"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "validation_error", errors.New("invalid id"))
		return
	}

	p, err := h.stock.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, stock.ErrProductNotFound) {
			respond.Error(w, http.StatusNotFound, "product_not_found", err)
			return
		}

		respond.Fail(w, r, err)

		return
	}

	respond.JSON(w, http.StatusOK, productResponse{
		ID:        p.ID,
		SKU:       p.SKU,
		Name:      p.Name,
		Stock:     money.Format(p.Stock),
		MinStock:  money.Format(p.MinStock),
		Status:    p.Status,
		LowStock:  p.LowStock(),
		UpdatedAt: p.UpdatedAt,
	})
}
