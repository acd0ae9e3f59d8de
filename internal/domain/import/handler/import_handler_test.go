package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/deposit-recon/internal/domain/deposit"
	"github.com/FACorreiaa/deposit-recon/internal/domain/shopify"
	"github.com/FACorreiaa/deposit-recon/pkg/storage"
)

type memoryStore struct {
	settings map[string]*deposit.Settings
	records  []*deposit.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{settings: make(map[string]*deposit.Settings)}
}

func (m *memoryStore) GetSettings(_ context.Context, id string) (*deposit.Settings, error) {
	s, ok := m.settings[id]
	if !ok {
		return nil, deposit.ErrNotFound
	}
	return s, nil
}

func (m *memoryStore) SaveSettings(_ context.Context, s *deposit.Settings) error {
	s.UpdatedAt = time.Now()
	m.settings[s.PaymentMethodID] = s
	return nil
}

func (m *memoryStore) SaveRecord(_ context.Context, r *deposit.Record) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.records = append(m.records, r)
	return nil
}

func (m *memoryStore) ListRecords(_ context.Context, id string, limit int) ([]*deposit.Record, error) {
	var out []*deposit.Record
	for _, r := range m.records {
		if r.PaymentMethodID == id && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

const settlementCSV = "Settlement report\n" +
	"Method,Gross,Refund\n" +
	"Visa,100,0\n" +
	"Visa,200,10\n" +
	"Cash,50,\n"

const shopifyCSV = "Day,Order name,Payment gateway,Gross payments,Refunded payments,Net payments\n" +
	"2024-01-15,#1001,shopify_payments,$10.00,$0.00,$10.00\n" +
	"1/15/2024,#1001,shopify_payments,$5.00,($1.00),$4.00\n"

func newTestRouter(t *testing.T, store *memoryStore) http.Handler {
	t.Helper()
	return newTestRouterWithUploads(t, store, nil)
}

func newTestRouterWithUploads(t *testing.T, store *memoryStore, uploads storage.Storage) http.Handler {
	t.Helper()

	var svc *deposit.Service
	if store != nil {
		svc = deposit.NewService(store, store, nil, nil)
	} else {
		svc = deposit.NewService(nil, nil, nil, nil)
	}
	h := NewImportHandler(svc, shopify.NewImporter(nil, nil), uploads, Options{MaxUploadBytes: 1 << 20}, slog.New(slog.DiscardHandler))

	r := chi.NewRouter()
	r.Mount("/v1", h.Routes())
	return r
}

func uploadRequest(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(fileField, fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestParseDeposit(t *testing.T) {
	router := newTestRouter(t, newMemoryStore())

	rec := serve(router, uploadRequest(t, "/v1/deposits/parse", "settlement.csv", settlementCSV,
		map[string]string{headerRowField: "1"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[deposit.AnalyzeResult](t, rec)
	assert.Equal(t, []string{"Method", "Gross", "Refund"}, result.Sheet.Columns)
	assert.Equal(t, 3, result.Sheet.RowCount)
	assert.Equal(t, 1, result.Sheet.HeaderRowIndex)
	assert.Contains(t, result.NumericColumns, "Gross")
	assert.False(t, result.SettingsFound)
}

func TestParseDeposit_Errors(t *testing.T) {
	router := newTestRouter(t, newMemoryStore())

	tests := []struct {
		name       string
		req        *http.Request
		wantStatus int
		wantError  string
	}{
		{
			name:       "no data rows",
			req:        uploadRequest(t, "/v1/deposits/parse", "empty.csv", "Method,Gross\n", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  `no data rows found after header row (header row index 0) in "empty.csv"`,
		},
		{
			name:       "corrupt xlsx",
			req:        uploadRequest(t, "/v1/deposits/parse", "bad.xlsx", "not a zip", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  `file could not be read as xlsx or CSV in "bad.xlsx"`,
		},
		{
			name:       "legacy xls",
			req:        uploadRequest(t, "/v1/deposits/parse", "old.xls", "\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  `file could not be read as xlsx or CSV in "old.xls"`,
		},
		{
			name:       "corrupt shopify export",
			req:        uploadRequest(t, "/v1/shopify/parse", "payments.xlsx", "not a zip", nil),
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  `in "payments.xlsx"`,
		},
		{
			name:       "negative header row",
			req:        uploadRequest(t, "/v1/deposits/parse", "s.csv", settlementCSV, map[string]string{headerRowField: "-2"}),
			wantStatus: http.StatusBadRequest,
			wantError:  "header_row must be a non-negative integer",
		},
		{
			name: "missing file",
			req: func() *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				_ = mw.WriteField(headerRowField, "0")
				_ = mw.Close()
				req := httptest.NewRequest(http.MethodPost, "/v1/deposits/parse", &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			}(),
			wantStatus: http.StatusBadRequest,
			wantError:  `missing "file" field`,
		},
		{
			name:       "too large",
			req:        uploadRequest(t, "/v1/deposits/parse", "big.csv", strings.Repeat("a,b\n", 1<<19), nil),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decode[ErrResponse](t, rec)
			assert.Contains(t, body.ErrorText, tt.wantError)
		})
	}
}

func TestParseDeposit_UsesSavedHeaderRow(t *testing.T) {
	store := newMemoryStore()
	header := 1
	store.settings["visa"] = &deposit.Settings{PaymentMethodID: "visa", AmountColumn: "Gross", HeaderRowIndex: &header}
	router := newTestRouter(t, store)

	rec := serve(router, uploadRequest(t, "/v1/deposits/parse", "s.csv", settlementCSV,
		map[string]string{paymentMethodKey: "visa"}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[deposit.AnalyzeResult](t, rec)
	assert.True(t, result.SettingsFound)
	assert.Equal(t, 1, result.Sheet.HeaderRowIndex)
}

func TestCalculateDeposit(t *testing.T) {
	router := newTestRouter(t, nil)

	t.Run("fixed percent", func(t *testing.T) {
		rec := serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits/calculate", map[string]any{
			"rows": []map[string]string{{"Gross": "100"}, {"Gross": "200"}, {"Gross": "50"}},
			"settings": map[string]any{
				"amountColumn": "Gross",
				"taxMethod":    "fixed_percent",
				"taxValue":     10,
			},
		}))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		calc := decode[deposit.Calculation](t, rec)
		assert.Equal(t, 350.0, calc.TotalAmount)
		assert.Equal(t, 35.0, calc.TaxAmount)
		assert.Equal(t, 385.0, calc.FinalAmount)
		assert.Equal(t, 3, calc.RowsAfterFilter)
	})

	t.Run("missing amount column", func(t *testing.T) {
		rec := serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits/calculate", map[string]any{
			"rows":     []map[string]string{{"Gross": "100"}},
			"settings": map[string]any{"taxMethod": "none"},
		}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing rows", func(t *testing.T) {
		rec := serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits/calculate", map[string]any{
			"settings": map[string]any{"amountColumn": "Gross"},
		}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSettingsEndpoints(t *testing.T) {
	router := newTestRouter(t, newMemoryStore())

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/settings/visa", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(router, jsonRequest(t, http.MethodPut, "/v1/deposits/settings/visa", map[string]any{
		"paymentMethodId": "ignored",
		"amountColumn":    "Gross",
		"taxMethod":       "column_based",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "column_based needs a tax column")

	rec = serve(router, jsonRequest(t, http.MethodPut, "/v1/deposits/settings/visa", map[string]any{
		"amountColumn": "Gross",
		"refundColumn": "Refund",
		"taxMethod":    "fixed_amount",
		"taxValue":     2.5,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/settings/visa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[deposit.Settings](t, rec)
	assert.Equal(t, "visa", saved.PaymentMethodID)
	assert.Equal(t, "Refund", saved.RefundColumn)
	assert.Equal(t, deposit.TaxMethodFixedAmount, saved.TaxMethod)
}

func TestSettingsEndpoints_NoStorage(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/settings/visa", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDepositRecords(t *testing.T) {
	store := newMemoryStore()
	store.settings["visa"] = &deposit.Settings{PaymentMethodID: "visa", AmountColumn: "Gross", RefundColumn: "Refund"}
	router := newTestRouter(t, store)

	rec := serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits", map[string]any{
		"paymentMethodId": "visa",
		"fileName":        "settlement.csv",
		"depositDate":     "2024-03-01",
		"rows":            []map[string]string{{"Gross": "100", "Refund": "0"}, {"Gross": "200", "Refund": "10"}},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[deposit.Record](t, rec)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, "EUR", created.CurrencyCode)
	assert.Equal(t, 290.0, created.FinalAmount)

	rec = serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits", map[string]any{
		"paymentMethodId": "visa",
		"depositDate":     "01/03/2024",
		"rows":            []map[string]string{},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "date must be ISO")

	rec = serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits", map[string]any{
		"paymentMethodId": "amex",
		"depositDate":     "2024-03-01",
		"rows":            []map[string]string{},
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no saved settings for amex")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits?payment_method_id=visa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]deposit.Record](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseShopify(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, uploadRequest(t, "/v1/shopify/parse", "payments.csv", shopifyCSV, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		RowCount int                 `json:"rowCount"`
		Rows     []shopify.ImportRow `json:"rows"`
		Grouped  []shopify.ImportRow `json:"grouped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.RowCount)
	require.Len(t, body.Grouped, 1)
	assert.Equal(t, "2024-01-15", body.Grouped[0].Day)
	assert.Equal(t, 15.0, body.Grouped[0].GrossPayments)
	assert.Equal(t, 14.0, body.Grouped[0].NetPayments)
}

func TestExportShopify(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, uploadRequest(t, "/v1/shopify/export", "payments.csv", shopifyCSV, nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `payments-grouped.csv`)
	assert.Contains(t, rec.Body.String(), "2024-01-15,#1001,shopify_payments")
}

func TestParseShopify_InsufficientRows(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, uploadRequest(t, "/v1/shopify/parse", "payments.csv", shopifyCSV,
		map[string]string{headerRowField: "9"}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[ErrResponse](t, rec).ErrorText, "fewer rows than the header row index")
}

func TestUploadArchive(t *testing.T) {
	uploads, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := newMemoryStore()
	store.settings["visa"] = &deposit.Settings{PaymentMethodID: "visa", AmountColumn: "Gross"}
	router := newTestRouterWithUploads(t, store, uploads)

	rec := serve(router, uploadRequest(t, "/v1/deposits/parse", "settlement.csv", settlementCSV,
		map[string]string{headerRowField: "1", paymentMethodKey: "visa"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	parsed := decode[struct {
		Upload *storage.FileInfo `json:"upload"`
	}](t, rec)
	require.NotNil(t, parsed.Upload)
	assert.Equal(t, "visa", parsed.Upload.Namespace)
	assert.Equal(t, int64(len(settlementCSV)), parsed.Upload.Size)

	rec = serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits", map[string]any{
		"paymentMethodId": "visa",
		"depositDate":     "2024-03-01",
		"uploadId":        parsed.Upload.ID,
		"rows":            []map[string]string{{"Gross": "100"}},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[deposit.Record](t, rec)
	require.NotNil(t, created.UploadID)
	assert.Equal(t, parsed.Upload.ID, *created.UploadID)

	rec = serve(router, jsonRequest(t, http.MethodPost, "/v1/deposits", map[string]any{
		"paymentMethodId": "visa",
		"depositDate":     "2024-03-01",
		"uploadId":        uuid.New(),
		"rows":            []map[string]string{{"Gross": "100"}},
	}))
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown upload")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/uploads/visa", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.FileInfo](t, rec), 1)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/uploads/visa/"+parsed.Upload.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, settlementCSV, string(body))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "settlement.csv")

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/uploads/visa/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadArchive_Disabled(t *testing.T) {
	router := newTestRouter(t, newMemoryStore())

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/v1/deposits/uploads/visa", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
