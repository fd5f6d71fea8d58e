package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/invoicer/internal/customer"
	"github.com/MrJamesThe3rd/invoicer/internal/export"
	invoicerHttp "github.com/MrJamesThe3rd/invoicer/internal/http"
	"github.com/MrJamesThe3rd/invoicer/internal/http/auth"
	customerHandler "github.com/MrJamesThe3rd/invoicer/internal/http/customer"
	invoiceHandler "github.com/MrJamesThe3rd/invoicer/internal/http/invoice"
	productHandler "github.com/MrJamesThe3rd/invoicer/internal/http/product"
	"github.com/MrJamesThe3rd/invoicer/internal/importer"
	"github.com/MrJamesThe3rd/invoicer/internal/invoice"
	"github.com/MrJamesThe3rd/invoicer/internal/memstore"
	"github.com/MrJamesThe3rd/invoicer/internal/stock"
)

type fixture struct {
	router    http.Handler
	auth      *auth.Authenticator
	customer  uuid.UUID
	unlimited uuid.UUID
	product   uuid.UUID
}

func newFixture(t *testing.T, withAuth bool) *fixture {
	t.Helper()

	st := memstore.New()
	svc := invoice.NewService(st)

	f := &fixture{
		customer: st.PutCustomer(customer.Customer{
			Name:           "Acme",
			CreditLimit:    decimal.RequireFromString("500"),
			CurrentBalance: decimal.RequireFromString("450"),
		}),
		unlimited: st.PutCustomer(customer.Customer{Name: "Globex"}),
		product: st.PutProduct(stock.Product{
			SKU:      "W-1",
			Name:     "Widget",
			Stock:    decimal.RequireFromString("2"),
			MinStock: decimal.RequireFromString("3"),
		}),
	}

	opts := invoicerHttp.Options{AllowedOrigins: []string{"https://desk.example"}}
	if withAuth {
		f.auth = auth.New("s3cret", "invoicer")
		opts.Auth = f.auth
	}

	f.router = invoicerHttp.New(
		opts,
		invoiceHandler.NewHandler(svc, importer.NewService(), export.NewService(svc)),
		productHandler.NewHandler(stock.NewAdjuster(st.Products())),
		customerHandler.NewHandler(customer.NewGuard(st.Customers()), svc),
	)

	return f
}

func (f *fixture) get(t *testing.T, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}

	return rec, body
}

func TestRouter_Products(t *testing.T) {
	f := newFixture(t, false)

	rec, body := f.get(t, "/api/v1/products/"+f.product.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2.00", body["stock"])
	assert.Equal(t, "active", body["status"])
	assert.Equal(t, true, body["low_stock"])

	rec, body = f.get(t, "/api/v1/products/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", body["kind"])
}

func TestRouter_CustomerCredit(t *testing.T) {
	f := newFixture(t, false)

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantApproved bool
		wantReason   string
	}{
		{
			name:         "within limit",
			path:         "/api/v1/customers/" + f.customer.String() + "/credit?charge=50",
			wantStatus:   http.StatusOK,
			wantApproved: true,
		},
		{
			name:       "over limit",
			path:       "/api/v1/customers/" + f.customer.String() + "/credit?charge=50.01",
			wantStatus: http.StatusOK,
			wantReason: "credit limit exceeded",
		},
		{
			name:         "no limit configured",
			path:         "/api/v1/customers/" + f.unlimited.String() + "/credit?charge=1000000",
			wantStatus:   http.StatusOK,
			wantApproved: true,
		},
		{
			name:       "unknown customer",
			path:       "/api/v1/customers/" + uuid.NewString() + "/credit?charge=1",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "bad charge",
			path:       "/api/v1/customers/" + f.customer.String() + "/credit?charge=abc",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, tt.path, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, tt.wantApproved, body["approved"])

			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, body["reason"])
			}
		})
	}
}

func TestRouter_Auth(t *testing.T) {
	f := newFixture(t, true)

	rec, body := f.get(t, "/api/v1/customers/"+f.customer.String(), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["kind"])

	user := uuid.New()
	token, err := f.auth.Issue(user, time.Hour)
	require.NoError(t, err)

	rec, body = f.get(t, "/api/v1/customers/"+f.customer.String(), token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50.00", body["available_credit"])

	payload, err := json.Marshal(map[string]any{
		"customer_id": f.unlimited,
		"items":       []map[string]any{{"description": "Consulting", "quantity": "1", "unit_price": "10"}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, user.String(), body["created_by"])

	rec, _ = f.get(t, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	f := newFixture(t, true)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/invoices", nil)
	req.Header.Set("Origin", "https://desk.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "https://desk.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RepairBalance(t *testing.T) {
	f := newFixture(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/customers/"+f.customer.String()+"/repair-balance", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0.00", body["current_balance"])
}
