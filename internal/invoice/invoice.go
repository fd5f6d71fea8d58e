package invoice

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/invoicer/internal/money"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPending       Status = "pending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"

	// StatusOverdue is never stored. It is derived from the due date of an open invoice.
	StatusOverdue Status = "overdue"
)

// Valid reports whether s is a known status, derived ones included.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPartiallyPaid, StatusPaid, StatusCancelled, StatusOverdue:
		return true
	}

	return false
}

// transitions lists the stored statuses reachable from each stored status.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusPending, StatusCancelled},
	StatusPending:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid, StatusCancelled},
}

// Invoice is the aggregate root. Items and payments are owned by it and only change
// through its methods or the lifecycle service.
//
// DiscountPercentage and DiscountAmount are the requested discount. AppliedDiscount is
// what Recalculate actually deducted after capping at the subtotal.
type Invoice struct {
	ID                 uuid.UUID
	Number             string
	IssueDate          time.Time
	DueDate            time.Time
	Status             Status
	PaymentMethod      string
	TaxPercentage      decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	AppliedDiscount    decimal.Decimal
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	Total              decimal.Decimal
	PaidAmount         decimal.Decimal
	BalanceDue         decimal.Decimal
	CustomerID         uuid.UUID
	CreatedBy          *uuid.UUID
	Notes              string
	Items              []Item
	Payments           []Payment
	Version            int
	CreatedAt          time.Time
	UpdatedAt          *time.Time
	DeletedAt          *time.Time
}

// Item is a line item addressed by its position within the invoice.
// AppliedDiscount is the computed deduction; the Discount fields are the request.
type Item struct {
	ID                 uuid.UUID
	Position           int
	Description        string
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	AppliedDiscount    decimal.Decimal
	Subtotal           decimal.Decimal
	ProductID          *uuid.UUID
}

// Payment is one recorded settlement against an invoice.
type Payment struct {
	ID        uuid.UUID
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
	Method    string
	Reference string
	PaidAt    time.Time
}

// Recalculate derives item subtotals and invoice totals from the current items,
// discount and tax settings.
func (inv *Invoice) Recalculate() {
	lines := make([]money.Line, len(inv.Items))
	for i, it := range inv.Items {
		lines[i] = money.Line{
			Quantity:           it.Quantity,
			UnitPrice:          it.UnitPrice,
			DiscountPercentage: it.DiscountPercentage,
			DiscountAmount:     it.DiscountAmount,
		}
	}

	t := money.Calculate(money.Params{
		Lines:              lines,
		DiscountPercentage: inv.DiscountPercentage,
		DiscountAmount:     inv.DiscountAmount,
		TaxPercentage:      inv.TaxPercentage,
	})

	for i := range inv.Items {
		inv.Items[i].AppliedDiscount = t.Lines[i].Discount
		inv.Items[i].Subtotal = t.Lines[i].Subtotal
	}

	inv.Subtotal = t.Subtotal
	inv.AppliedDiscount = t.DiscountAmount
	inv.TaxAmount = t.TaxAmount
	inv.Total = t.Total
	inv.BalanceDue = inv.Total.Sub(inv.PaidAmount)
}

// ReplaceItems discards the current items, renumbers the new ones from 1 and recalculates.
func (inv *Invoice) ReplaceItems(items []Item) error {
	if inv.Status != StatusDraft {
		return &StateError{Op: "edit", From: inv.Status}
	}

	inv.Items = make([]Item, len(items))
	for i, it := range items {
		it.ID = uuid.Nil
		it.Position = i + 1
		inv.Items[i] = it
	}

	inv.Recalculate()

	return nil
}

// CanTransition reports whether the stored status may move to to.
func (inv *Invoice) CanTransition(to Status) bool {
	for _, s := range transitions[inv.Status] {
		if s == to {
			return true
		}
	}

	return false
}

// DateOnly drops the time of day, keeping the calendar date t shows in its own location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsOverdue reports whether an open invoice is past its due date on now's calendar day.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status != StatusPending && inv.Status != StatusPartiallyPaid {
		return false
	}

	return DateOnly(now).After(DateOnly(inv.DueDate))
}

// EffectiveStatus is the status shown to users: the stored one, or overdue.
func (inv *Invoice) EffectiveStatus(now time.Time) Status {
	if inv.IsOverdue(now) {
		return StatusOverdue
	}

	return inv.Status
}

// ReservedItems returns the items that reference a catalog product.
func (inv *Invoice) ReservedItems() []Item {
	var out []Item

	for _, it := range inv.Items {
		if it.ProductID != nil {
			out = append(out, it)
		}
	}

	return out
}

// ProductQuantities sums item quantities per referenced product. The ids come back
// sorted so every transaction locks product rows in the same order.
func (inv *Invoice) ProductQuantities() ([]uuid.UUID, map[uuid.UUID]decimal.Decimal) {
	var order []uuid.UUID

	qty := make(map[uuid.UUID]decimal.Decimal)

	for _, it := range inv.ReservedItems() {
		id := *it.ProductID
		if _, ok := qty[id]; !ok {
			order = append(order, id)
			qty[id] = decimal.Zero
		}

		qty[id] = qty[id].Add(it.Quantity)
	}

	slices.SortFunc(order, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})

	return order, qty
}

// ApplyPayment records a payment and moves the invoice to partially_paid or paid.
func (inv *Invoice) ApplyPayment(amount decimal.Decimal, method, reference string, at time.Time) (*Payment, error) {
	if inv.Status != StatusPending && inv.Status != StatusPartiallyPaid {
		return nil, &StateError{Op: "add payment", From: inv.Status}
	}

	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}

	if err := money.CheckAmount(amount); err != nil {
		return nil, &ValidationError{Field: "amount", Reason: err.Error()}
	}

	if amount.GreaterThan(inv.BalanceDue) {
		return nil, fmt.Errorf("%w: amount %s, balance due %s",
			ErrPaymentExceedsBalance, money.Format(amount), money.Format(inv.BalanceDue))
	}

	inv.PaidAmount = inv.PaidAmount.Add(amount)
	inv.BalanceDue = inv.Total.Sub(inv.PaidAmount)

	if inv.BalanceDue.IsPositive() {
		inv.Status = StatusPartiallyPaid
	} else {
		inv.Status = StatusPaid
	}

	p := Payment{
		InvoiceID: inv.ID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		PaidAt:    at,
	}
	inv.Payments = append(inv.Payments, p)

	return &inv.Payments[len(inv.Payments)-1], nil
}
