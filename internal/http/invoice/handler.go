package invoice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/invoicer/internal/export"
	"github.com/MrJamesThe3rd/invoicer/internal/http/auth"
	"github.com/MrJamesThe3rd/invoicer/internal/http/respond"
	"github.com/MrJamesThe3rd/invoicer/internal/importer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
)

const maxUploadSize = 10 << 20

type Handler struct {
	svc       *invoice.Service
	importSvc *importer.Service
	exportSvc *export.Service
}

func NewHandler(svc *invoice.Service, importSvc *importer.Service, exportSvc *export.Service) *Handler {
	return &Handler{
		svc:       svc,
		importSvc: importSvc,
		exportSvc: exportSvc,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/export", h.export)
	r.Get("/number/{number}", h.getByNumber)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Put("/{id}/items", h.edit)
	r.Post("/{id}/items/import", h.importItems)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/payments", h.addPayment)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/restore", h.restore)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respond.Fail(w, r, &invoice.ValidationError{Field: "body", Reason: err.Error()})
		return false
	}

	return true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Fail(w, r, &invoice.ValidationError{Field: "id", Reason: "invalid id"})
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) write(w http.ResponseWriter, status int, inv *invoice.Invoice) {
	respond.JSON(w, status, toResponse(inv, h.svc.Now()))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.svc.Create(r.Context(), invoice.CreateParams{
		CustomerID:         req.CustomerID,
		CreatedBy:          auth.Subject(r.Context()),
		Number:             req.Number,
		IssueDate:          req.IssueDate.value(),
		DueDate:            req.DueDate.value(),
		PaymentMethod:      req.PaymentMethod,
		TaxPercentage:      req.TaxPercentage,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		Notes:              req.Notes,
		Items:              toItemParams(req.Items),
	})
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusCreated, inv)
}

func parseFilter(r *http.Request) (invoice.ListFilter, error) {
	q := r.URL.Query()
	filter := invoice.ListFilter{Search: q.Get("search")}

	if s := q.Get("status"); s != "" {
		filter.Status = new(invoice.Status(s))
	}

	if s := q.Get("customer_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return filter, &invoice.ValidationError{Field: "customer_id", Reason: "invalid id"}
		}

		filter.CustomerID = &id
	}

	dates := []struct {
		key string
		dst **time.Time
	}{
		{"start_date", &filter.StartDate},
		{"end_date", &filter.EndDate},
	}
	for _, d := range dates {
		if s := q.Get(d.key); s != "" {
			t, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return filter, &invoice.ValidationError{Field: d.key, Reason: "expected YYYY-MM-DD"}
			}

			*d.dst = &t
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"limit", &filter.Limit},
		{"offset", &filter.Offset},
	}
	for _, n := range ints {
		if s := q.Get(n.key); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return filter, &invoice.ValidationError{Field: n.key, Reason: "must be an integer"}
			}

			*n.dst = v
		}
	}

	if s := q.Get("include_deleted"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return filter, &invoice.ValidationError{Field: "include_deleted", Reason: "must be a boolean"}
		}

		filter.IncludeDeleted = v
	}

	return filter, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	res, err := h.svc.List(r.Context(), filter)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toListResponse(res, h.svc.Now()))
}

// export writes a CSV statement, or the plain-text summary with ?format=summary.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	var buf bytes.Buffer

	invoices, err := h.exportSvc.Statement(r.Context(), filter, &buf)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "summary" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(h.exportSvc.Summary(invoices)))

		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=\"statement_%s.csv\"", h.svc.Now().Format("20060102")))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

func (h *Handler) getByNumber(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req editRequest
	if !decode(w, r, &req) {
		return
	}

	if req.Items == nil {
		respond.Fail(w, r, &invoice.ValidationError{Field: "items", Reason: "is required, send [] to remove every item"})
		return
	}

	params := invoice.EditParams{
		Items:              toItemParams(*req.Items),
		PaymentMethod:      req.PaymentMethod,
		TaxPercentage:      req.TaxPercentage,
		DiscountPercentage: req.DiscountPercentage,
		DiscountAmount:     req.DiscountAmount,
		Notes:              req.Notes,
	}

	if req.DueDate != nil {
		params.DueDate = new(req.DueDate.Time)
	}

	inv, err := h.svc.Edit(r.Context(), id, params)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

// importItems replaces the items of a draft with the rows of an uploaded spreadsheet.
func (h *Handler) importItems(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respond.Fail(w, r, &invoice.ValidationError{Field: "file", Reason: "failed to parse form: " + err.Error()})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.Fail(w, r, &invoice.ValidationError{Field: "file", Reason: "missing file"})
		return
	}
	defer file.Close()

	items, err := h.importSvc.Import(importer.Format(r.FormValue("format")), file)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	inv, err := h.svc.Edit(r.Context(), id, invoice.EditParams{Items: items})
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Confirm(r.Context(), id)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !decode(w, r, &req) {
		return
	}

	params := invoice.PaymentParams{
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
	}

	if req.PaidAt != nil {
		params.PaidAt = *req.PaidAt
	}

	inv, err := h.svc.AddPayment(r.Context(), id, params)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusCreated, inv)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		respond.Fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	inv, err := h.svc.Restore(r.Context(), id)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}

	h.write(w, http.StatusOK, inv)
}
