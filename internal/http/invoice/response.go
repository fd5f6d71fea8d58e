package invoice

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

type itemResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Position           int        `json:"position"`
	Description        string     `json:"description"`
	Quantity           string     `json:"quantity"`
	UnitPrice          string     `json:"unit_price"`
	DiscountPercentage string     `json:"discount_percentage"`
	DiscountAmount     string     `json:"discount_amount"`
	AppliedDiscount    string     `json:"applied_discount"`
	Subtotal           string     `json:"subtotal"`
	ProductID          *uuid.UUID `json:"product_id,omitempty"`
}

type paymentResponse struct {
	ID        uuid.UUID `json:"id"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	PaidAt    time.Time `json:"paid_at"`
}

type invoiceResponse struct {
	ID                 uuid.UUID         `json:"id"`
	Number             string            `json:"number"`
	IssueDate          string            `json:"issue_date"`
	DueDate            string            `json:"due_date"`
	Status             invoice.Status    `json:"status"`
	PaymentMethod      string            `json:"payment_method,omitempty"`
	TaxPercentage      string            `json:"tax_percentage"`
	DiscountPercentage string            `json:"discount_percentage"`
	DiscountAmount     string            `json:"discount_amount"`
	AppliedDiscount    string            `json:"applied_discount"`
	Subtotal           string            `json:"subtotal"`
	TaxAmount          string            `json:"tax_amount"`
	Total              string            `json:"total"`
	PaidAmount         string            `json:"paid_amount"`
	BalanceDue         string            `json:"balance_due"`
	CustomerID         uuid.UUID         `json:"customer_id"`
	CreatedBy          *uuid.UUID        `json:"created_by,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	Items              []itemResponse    `json:"items,omitempty"`
	Payments           []paymentResponse `json:"payments,omitempty"`
	Version            int               `json:"version"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at,omitempty"`
	DeletedAt          *time.Time        `json:"deleted_at,omitempty"`
}

type listResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// toResponse renders inv with the status a user would see on now's date.
func toResponse(inv *invoice.Invoice, now time.Time) invoiceResponse {
	resp := invoiceResponse{
		ID:                 inv.ID,
		Number:             inv.Number,
		IssueDate:          inv.IssueDate.Format(time.DateOnly),
		DueDate:            inv.DueDate.Format(time.DateOnly),
		Status:             inv.EffectiveStatus(now),
		PaymentMethod:      inv.PaymentMethod,
		TaxPercentage:      money.Format(inv.TaxPercentage),
		DiscountPercentage: money.Format(inv.DiscountPercentage),
		DiscountAmount:     money.Format(inv.DiscountAmount),
		AppliedDiscount:    money.Format(inv.AppliedDiscount),
		Subtotal:           money.Format(inv.Subtotal),
		TaxAmount:          money.Format(inv.TaxAmount),
		Total:              money.Format(inv.Total),
		PaidAmount:         money.Format(inv.PaidAmount),
		BalanceDue:         money.Format(inv.BalanceDue),
		CustomerID:         inv.CustomerID,
		CreatedBy:          inv.CreatedBy,
		Notes:              inv.Notes,
		Version:            inv.Version,
		CreatedAt:          inv.CreatedAt,
		UpdatedAt:          inv.UpdatedAt,
		DeletedAt:          inv.DeletedAt,
	}

	for _, it := range inv.Items {
		resp.Items = append(resp.Items, itemResponse{
			ID:                 it.ID,
			Position:           it.Position,
			Description:        it.Description,
			Quantity:           money.Format(it.Quantity),
			UnitPrice:          money.Format(it.UnitPrice),
			DiscountPercentage: money.Format(it.DiscountPercentage),
			DiscountAmount:     money.Format(it.DiscountAmount),
			AppliedDiscount:    money.Format(it.AppliedDiscount),
			Subtotal:           money.Format(it.Subtotal),
			ProductID:          it.ProductID,
		})
	}

	for _, p := range inv.Payments {
		resp.Payments = append(resp.Payments, paymentResponse{
			ID:        p.ID,
			Amount:    money.Format(p.Amount),
			Method:    p.Method,
			Reference: p.Reference,
			PaidAt:    p.PaidAt,
		})
	}

	return resp
}

func toListResponse(res *invoice.ListResult, now time.Time) listResponse {
	resp := listResponse{
		Invoices: make([]invoiceResponse, len(res.Invoices)),
		Total:    res.Total,
		Limit:    res.Limit,
		Offset:   res.Offset,
	}

	for i, inv := range res.Invoices {
		resp.Invoices[i] = toResponse(inv, now)
	}

	return resp
}
