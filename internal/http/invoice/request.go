package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

// Date accepts "2006-01-02" as well as full RFC 3339 timestamps.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}

	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}

	d.Time = t

	return nil
}

func (d *Date) value() time.Time {
	if d == nil {
		return time.Time{}
	}

	return d.Time
}

type itemRequest struct {
	Description        string          `json:"description"`
	Quantity           decimal.Decimal `json:"quantity"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ProductID          *uuid.UUID      `json:"product_id,omitempty"`
}

func toItemParams(items []itemRequest) []invoice.ItemParams {
	out := make([]invoice.ItemParams, len(items))
	for i, it := range items {
		out[i] = invoice.ItemParams{
			Description:        it.Description,
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			DiscountPercentage: it.DiscountPercentage,
			DiscountAmount:     it.DiscountAmount,
			ProductID:          it.ProductID,
		}
	}

	return out
}

type createRequest struct {
	CustomerID         uuid.UUID        `json:"customer_id"`
	Number             string           `json:"number,omitempty"`
	IssueDate          *Date            `json:"issue_date,omitempty"`
	DueDate            *Date            `json:"due_date,omitempty"`
	PaymentMethod      string           `json:"payment_method"`
	TaxPercentage      *decimal.Decimal `json:"tax_percentage,omitempty"`
	DiscountPercentage decimal.Decimal  `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal  `json:"discount_amount"`
	Notes              string           `json:"notes"`
	Items              []itemRequest    `json:"items"`
}

// editRequest mirrors invoice.EditParams. Items is a pointer so that a body without
// the key is rejected instead of clearing the draft; send [] to clear it.
type editRequest struct {
	Items              *[]itemRequest   `json:"items"`
	DueDate            *Date            `json:"due_date,omitempty"`
	PaymentMethod      *string          `json:"payment_method,omitempty"`
	TaxPercentage      *decimal.Decimal `json:"tax_percentage,omitempty"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
}

type paymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}
