package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/FACorreiaa/deposit-recon/internal/domain/deposit"
	"github.com/FACorreiaa/deposit-recon/internal/domain/import/parser"
	"github.com/FACorreiaa/deposit-recon/internal/domain/shopify"
	"github.com/FACorreiaa/deposit-recon/pkg/storage"
)

const (
	fileField        = "file"
	headerRowField   = "header_row"
	paymentMethodKey = "payment_method_id"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options tunes upload handling.
type Options struct {
	MaxUploadBytes   int64
	DefaultHeaderRow int
	DefaultCurrency  string
}

// ImportHandler serves the deposit and Shopify upload endpoints.
type ImportHandler struct {
	deposits *deposit.Service
	shopify  *shopify.Importer
	uploads  storage.Storage // nil when uploads are not archived
	opts     Options
	logger   *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(deposits *deposit.Service, importer *shopify.Importer, uploads storage.Storage, opts Options, logger *slog.Logger) *ImportHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultCurrency == "" {
		opts.DefaultCurrency = "EUR"
	}
	return &ImportHandler{
		deposits: deposits,
		shopify:  importer,
		uploads:  uploads,
		opts:     opts,
		logger:   logger.With(slog.String("handler", "import")),
	}
}

// Routes returns the import routes, meant to be mounted under /v1.
func (h *ImportHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Route("/deposits", func(r chi.Router) {
		r.Get("/", h.ListDeposits)
		r.Post("/", h.SaveDeposit)
		r.Post("/parse", h.ParseDeposit)
		r.Post("/calculate", h.CalculateDeposit)
		r.Get("/settings/{paymentMethodID}", h.GetSettings)
		r.Put("/settings/{paymentMethodID}", h.SaveSettings)
		r.Get("/uploads/{paymentMethodID}", h.ListUploads)
		r.Get("/uploads/{paymentMethodID}/{uploadID}", h.DownloadUpload)
	})

	r.Route("/shopify", func(r chi.Router) {
		r.Post("/parse", h.ParseShopify)
		r.Post("/export", h.ExportShopify)
	})
	return r
}

// ParseDepositResponse is the analysis of an upload. Upload is set when the
// file was archived; its id can be sent back when saving the deposit.
type ParseDepositResponse struct {
	*deposit.AnalyzeResult
	Upload *storage.FileInfo `json:"upload,omitempty"`
}

// ParseDeposit handles POST /deposits/parse (multipart: file, header_row,
// payment_method_id).
func (h *ImportHandler) ParseDeposit(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	var headerRow *int
	if upload.headerRowSet {
		headerRow = &upload.headerRow
	}
	paymentMethodID := r.FormValue(paymentMethodKey)
	result, err := h.deposits.Analyze(r.Context(), upload.data, upload.fileName, paymentMethodID, headerRow)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	resp := &ParseDepositResponse{AnalyzeResult: result}
	if h.uploads != nil {
		info, err := h.uploads.Save(r.Context(), paymentMethodID, upload.fileName, upload.contentType, bytes.NewReader(upload.data))
		if err != nil {
			h.logger.WarnContext(r.Context(), "failed to archive upload",
				slog.String("file", upload.fileName),
				slog.Any("error", err),
			)
		} else {
			resp.Upload = info
		}
	}
	render.JSON(w, r, resp)
}

// CalculateRequest carries rows returned by the parse endpoint and the
// settings to apply to them.
type CalculateRequest struct {
	Rows     []parser.Row     `json:"rows" validate:"required"`
	Settings deposit.Settings `json:"settings" validate:"-"`
}

// Bind implements render.Binder.
func (c *CalculateRequest) Bind(r *http.Request) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Settings.AmountColumn) == "" {
		return errors.New("settings.amountColumn is required")
	}
	return nil
}

// CalculateDeposit handles POST /deposits/calculate.
func (h *ImportHandler) CalculateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	calc, err := h.deposits.Calculate(r.Context(), sheetFromRows(req.Rows), req.Settings)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, calc)
}

// GetSettings handles GET /deposits/settings/{paymentMethodID}.
func (h *ImportHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deposits.GetSettings(r.Context(), chi.URLParam(r, "paymentMethodID"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

// SaveSettings handles PUT /deposits/settings/{paymentMethodID}. The id in
// the path wins over the body.
func (h *ImportHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings deposit.Settings
	if err := render.DecodeJSON(r.Body, &settings); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	settings.PaymentMethodID = chi.URLParam(r, "paymentMethodID")

	if err := h.deposits.SaveSettings(r.Context(), &settings); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, settings)
}

// SaveDepositRequest saves a deposit. Totals are always recomputed from Rows;
// without Settings the saved settings of the payment method are used.
type SaveDepositRequest struct {
	PaymentMethodID string            `json:"paymentMethodId" validate:"required"`
	FileName        string            `json:"fileName"`
	DepositDate     string            `json:"depositDate" validate:"required,datetime=2006-01-02"`
	CurrencyCode    string            `json:"currencyCode"`
	Rows            []parser.Row      `json:"rows" validate:"required"`
	Settings        *deposit.Settings `json:"settings,omitempty" validate:"-"`
	UploadID        *uuid.UUID        `json:"uploadId,omitempty"`
}

// Bind implements render.Binder.
func (s *SaveDepositRequest) Bind(r *http.Request) error {
	return validate.Struct(s)
}

// SaveDeposit handles POST /deposits.
func (h *ImportHandler) SaveDeposit(w http.ResponseWriter, r *http.Request) {
	var req SaveDepositRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	settings := req.Settings
	if settings == nil {
		saved, err := h.deposits.GetSettings(r.Context(), req.PaymentMethodID)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		settings = saved
	}

	if req.UploadID != nil && h.uploads != nil {
		if _, err := h.uploads.GetInfo(r.Context(), req.PaymentMethodID, *req.UploadID); err != nil {
			h.renderError(w, r, err)
			return
		}
	}

	calc, err := h.deposits.Calculate(r.Context(), sheetFromRows(req.Rows), *settings)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	day, _ := time.Parse(time.DateOnly, req.DepositDate)
	rec := &deposit.Record{
		PaymentMethodID: req.PaymentMethodID,
		FileName:        req.FileName,
		DepositDate:     day,
		CurrencyCode:    req.CurrencyCode,
		UploadID:        req.UploadID,
		Calculation:     calc,
	}
	if err := h.deposits.SaveRecord(r.Context(), rec, h.opts.DefaultCurrency); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rec)
}

// ListDeposits handles GET /deposits?payment_method_id=...&limit=...
func (h *ImportHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	paymentMethodID := r.URL.Query().Get(paymentMethodKey)
	if paymentMethodID == "" {
		render.Render(w, r, ErrInvalidRequest(errors.New("payment_method_id is required")))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.deposits.ListRecords(r.Context(), paymentMethodID, limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if records == nil {
		records = []*deposit.Record{}
	}
	render.JSON(w, r, records)
}

// ListUploads handles GET /deposits/uploads/{paymentMethodID}.
func (h *ImportHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		render.Render(w, r, ErrUnavailable(errUploadsDisabled))
		return
	}
	files, err := h.uploads.List(r.Context(), chi.URLParam(r, "paymentMethodID"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, files)
}

// DownloadUpload handles GET /deposits/uploads/{paymentMethodID}/{uploadID}
// and streams the archived file.
func (h *ImportHandler) DownloadUpload(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		render.Render(w, r, ErrUnavailable(errUploadsDisabled))
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid upload id: %w", err)))
		return
	}

	rc, info, err := h.uploads.Open(r.Context(), chi.URLParam(r, "paymentMethodID"), id)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "failed to stream upload", slog.String("id", id.String()), slog.Any("error", err))
	}
}

// ParseShopify handles POST /shopify/parse.
func (h *ImportHandler) ParseShopify(w http.ResponseWriter, r *http.Request) {
	result, ok := h.importShopify(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, result)
}

// ExportShopify handles POST /shopify/export and answers with the grouped
// sales as CSV.
func (h *ImportHandler) ExportShopify(w http.ResponseWriter, r *http.Request) {
	result, ok := h.importShopify(w, r)
	if !ok {
		return
	}

	data, err := shopify.ExportCSV(result.Grouped)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	name := strings.TrimSuffix(result.fileName, filepath.Ext(result.fileName)) + "-grouped.csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type shopifyResult struct {
	*shopify.Result
	fileName string
}

func (h *ImportHandler) importShopify(w http.ResponseWriter, r *http.Request) (*shopifyResult, bool) {
	upload, err := h.readUpload(w, r)
	if err != nil {
		h.renderError(w, r, err)
		return nil, false
	}

	result, err := h.shopify.Import(r.Context(), upload.data, upload.fileName, upload.headerRow)
	if err != nil {
		h.renderError(w, r, err)
		return nil, false
	}
	return &shopifyResult{Result: result, fileName: upload.fileName}, true
}

type upload struct {
	data         []byte
	fileName     string
	contentType  string
	headerRow    int
	headerRowSet bool
}

var (
	// errBadUpload marks client mistakes in the multipart form.
	errBadUpload       = errors.New("invalid upload")
	errUploadsDisabled = errors.New("upload archive is disabled")
)

func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: file is larger than %d bytes", errBadUpload, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}

	file, header, err := r.FormFile(fileField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %q field", errBadUpload, fileField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	u := &upload{
		data:        data,
		fileName:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		headerRow:   h.opts.DefaultHeaderRow,
	}
	if v := strings.TrimSpace(r.FormValue(headerRowField)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s must be a non-negative integer", errBadUpload, headerRowField)
		}
		u.headerRow, u.headerRowSet = n, true
	}
	return u, nil
}

func sheetFromRows(rows []parser.Row) *parser.ParsedSheet {
	return &parser.ParsedSheet{Rows: rows, RowCount: len(rows)}
}

// renderError maps domain errors onto HTTP statuses. Parse failures are
// reported verbatim so the caller can show them next to the upload.
func (h *ImportHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var parseErr *parser.ParseError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &parseErr):
		render.Render(w, r, ErrUnprocessable(err))
	case errors.Is(err, errBadUpload),
		errors.Is(err, deposit.ErrInvalidSettings),
		errors.Is(err, deposit.ErrInvalidRecord),
		errors.As(err, &validationErrs):
		render.Render(w, r, ErrInvalidRequest(err))
	case errors.Is(err, deposit.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		render.Render(w, r, ErrNotFound)
	case errors.Is(err, deposit.ErrStorageUnavailable):
		render.Render(w, r, ErrUnavailable(err))
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		render.Render(w, r, ErrInternal)
	}
}
