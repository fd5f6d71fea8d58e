package customer

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/http/respond"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

type Handler struct {
	guard    *customer.Guard
	invoices *invoice.Service
}

func NewHandler(guard *customer.Guard, invoices *invoice.Service) *Handler {
	return &Handler{guard: guard, invoices: invoices}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Get("/{id}/credit", h.credit)
	r.Post("/{id}/repair-balance", h.repairBalance)
}

type customerResponse struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email,omitempty"`
	Status          customer.Status `json:"status"`
	CreditLimit     string          `json:"credit_limit"`
	CurrentBalance  string          `json:"current_balance"`
	AvailableCredit string          `json:"available_credit"`
}

type creditResponse struct {
	Approved        bool   `json:"approved"`
	Unlimited       bool   `json:"unlimited"`
	Reason          string `json:"reason,omitempty"`
	AvailableCredit string `json:"available_credit"`
}

func toResponse(c *customer.Customer) customerResponse {
	return customerResponse{
		ID:              c.ID,
		Name:            c.Name,
		Email:           c.Email,
		Status:          c.Status,
		CreditLimit:     money.Format(c.CreditLimit),
		CurrentBalance:  money.Format(c.CurrentBalance),
		AvailableCredit: money.Format(c.AvailableCredit()),
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, customer.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "customer_not_found", err)
	case errors.Is(err, customer.ErrInvalidAmount):
		respond.Error(w, http.StatusBadRequest, "validation_error", err)
	default:
		respond.Fail(w, r, err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "validation_error", errors.New("invalid id"))
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.guard.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}

// credit answers whether ?charge= could be added to the customer's balance right now.
func (h *Handler) credit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	charge := decimal.Zero

	if s := r.URL.Query().Get("charge"); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, "validation_error", errors.New("charge must be a number"))
			return
		}

		charge = d
	}

	d, err := h.guard.CheckCreditAvailable(r.Context(), id, charge)
	if err != nil {
		fail(w, r, err)
		return
	}

	resp := creditResponse{
		Approved:        d.Approved,
		Unlimited:       d.Unlimited,
		AvailableCredit: money.Format(d.AvailableCredit),
	}

	if d.Reason != nil {
		resp.Reason = d.Reason.Error()
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) repairBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := h.invoices.RepairCustomerBalance(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}
