package deposit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/deposit-recon/internal/domain/import/parser"
	"github.com/FACorreiaa/deposit-recon/internal/domain/import/sniffer"
	"github.com/FACorreiaa/deposit-recon/pkg/observability"
)

const defaultListLimit = 50

// AnalyzeResult is a parsed upload plus what is needed to fill in the
// settings form.
type AnalyzeResult struct {
	Sheet          *parser.ParsedSheet         `json:"sheet"`
	NumericColumns []string                    `json:"numericColumns"`
	Suggestions    *sniffer.DepositSuggestions `json:"suggestions"`
	FilterValues   map[string][]string         `json:"filterValues,omitempty"`

	// SettingsFound is true when the payment method already has settings;
	// Settings then holds them and the header row they name was used.
	SettingsFound bool      `json:"settingsFound"`
	Settings      *Settings `json:"settings,omitempty"`
}

// Service orchestrates parsing, calculation and persistence of deposits.
type Service struct {
	settings SettingsRepository // nil when no database is configured
	records  RecordRepository   // nil when no database is configured
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewService creates a deposit service. Repositories and metrics may be nil.
func NewService(settings SettingsRepository, records RecordRepository, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		settings: settings,
		records:  records,
		metrics:  metrics,
		logger:   logger.With(slog.String("service", "deposit")),
	}
}

// Analyze parses an upload. When headerRowIndex is nil the saved settings of
// paymentMethodID decide the header row, falling back to row 0.
func (s *Service) Analyze(ctx context.Context, data []byte, fileName, paymentMethodID string, headerRowIndex *int) (result *AnalyzeResult, err error) {
	ctx, span := observability.StartSpan(ctx, "deposit.analyze",
		attribute.String("file.name", fileName),
		attribute.Int("file.size", len(data)),
	)
	defer func() { observability.EndSpan(span, err) }()

	result = &AnalyzeResult{}
	if paymentMethodID != "" && s.settings != nil {
		saved, err := s.settings.GetSettings(ctx, paymentMethodID)
		switch {
		case err == nil:
			result.SettingsFound = true
			result.Settings = saved
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}

	header := 0
	switch {
	case headerRowIndex != nil:
		header = *headerRowIndex
	case result.Settings != nil:
		header = result.Settings.HeaderRow()
	}

	started := time.Now()
	sheet, err := parser.ParseFile(data, fileName, header, s.logger)
	s.metrics.ObserveParse(observability.PipelineDeposit, started, err)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to parse deposit file",
			slog.String("file", fileName),
			slog.Any("error", err),
		)
		return nil, err
	}

	result.Sheet = sheet
	result.NumericColumns = parser.NumericColumns(sheet)
	result.Suggestions = sniffer.SuggestDepositColumns(sheet.Columns)

	filterColumn := result.Suggestions.FilterColumn
	if result.Settings != nil && result.Settings.FilterColumn != "" {
		filterColumn = result.Settings.FilterColumn
	}
	if filterColumn != "" {
		result.FilterValues = map[string][]string{
			filterColumn: parser.DistinctValues(sheet.Rows, filterColumn),
		}
	}

	s.logger.InfoContext(ctx, "deposit file analyzed",
		slog.String("file", fileName),
		slog.Int("header_row", sheet.HeaderRowIndex),
		slog.Int("rows", sheet.RowCount),
		slog.Bool("settings_found", result.SettingsFound),
	)
	return result, nil
}

// Calculate filters the sheet rows with the settings' allow-list and computes
// the totals.
func (s *Service) Calculate(ctx context.Context, sheet *parser.ParsedSheet, settings Settings) (Calculation, error) {
	_, span := observability.StartSpan(ctx, "deposit.calculate",
		attribute.String("deposit.tax_method", string(settings.TaxMethod)),
	)
	if sheet == nil {
		err := errors.New("no sheet to calculate")
		observability.EndSpan(span, err)
		return Calculation{}, err
	}

	rows := FilterRowsByColumn(sheet.Rows, settings.FilterColumn, settings.FilterValues)
	calc := CalculateTotals(rows, settings.Totals(), s.logger)

	s.metrics.ObserveCalculation(string(settings.TaxMethod))
	s.metrics.AddInvalidCells(observability.PipelineDeposit, calc.InvalidCells)
	span.SetAttributes(
		attribute.Int("deposit.rows", calc.RowsAfterFilter),
		attribute.Int("deposit.invalid_cells", calc.InvalidCells),
	)
	observability.EndSpan(span, nil)

	s.logger.DebugContext(ctx, "deposit totals calculated",
		slog.Int("rows_in", len(sheet.Rows)),
		slog.Int("rows_after_filter", calc.RowsAfterFilter),
		slog.Float64("final_amount", calc.FinalAmount),
		slog.Int("invalid_cells", calc.InvalidCells),
	)
	return calc, nil
}

// GetSettings returns the saved settings of a payment method.
func (s *Service) GetSettings(ctx context.Context, paymentMethodID string) (*Settings, error) {
	if s.settings == nil {
		return nil, ErrStorageUnavailable
	}
	return s.settings.GetSettings(ctx, paymentMethodID)
}

// SaveSettings validates and stores settings.
func (s *Service) SaveSettings(ctx context.Context, settings *Settings) error {
	if s.settings == nil {
		return ErrStorageUnavailable
	}
	settings.PaymentMethodID = strings.TrimSpace(settings.PaymentMethodID)
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.settings.SaveSettings(ctx, settings); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "deposit settings saved",
		slog.String("payment_method_id", settings.PaymentMethodID),
		slog.String("tax_method", string(settings.TaxMethod)),
	)
	return nil
}

// SaveRecord validates and stores a computed deposit.
func (s *Service) SaveRecord(ctx context.Context, rec *Record, defaultCurrency string) error {
	if s.records == nil {
		return ErrStorageUnavailable
	}
	if rec.CurrencyCode == "" {
		rec.CurrencyCode = defaultCurrency
	}
	rec.CurrencyCode = strings.ToUpper(rec.CurrencyCode)
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.records.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("save deposit for %q: %w", rec.PaymentMethodID, err)
	}

	s.logger.InfoContext(ctx, "deposit saved",
		slog.String("id", rec.ID.String()),
		slog.String("payment_method_id", rec.PaymentMethodID),
		slog.Float64("final_amount", rec.FinalAmount),
	)
	return nil
}

// ListRecords returns the latest deposits of a payment method.
func (s *Service) ListRecords(ctx context.Context, paymentMethodID string, limit int) ([]*Record, error) {
	if s.records == nil {
		return nil, ErrStorageUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	return s.records.ListRecords(ctx, paymentMethodID, limit)
}
