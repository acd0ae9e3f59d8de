// Package deposit computes deposit totals (gross, refunds, net, tax, final)
// from parsed sheet rows and persists per payment method settings.
package deposit

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidSettings    = errors.New("invalid deposit settings")
	ErrInvalidRecord      = errors.New("invalid deposit record")
	ErrStorageUnavailable = errors.New("deposit storage is not configured")
)

// TaxMethod selects how the tax line of a deposit is derived.
type TaxMethod string

const (
	TaxMethodNone         TaxMethod = "none"
	TaxMethodFixedPercent TaxMethod = "fixed_percent"
	TaxMethodFixedAmount  TaxMethod = "fixed_amount"
	TaxMethodColumnBased  TaxMethod = "column_based"
)

// Settings is the saved column mapping for one payment method.
type Settings struct {
	PaymentMethodID string    `json:"paymentMethodId" yaml:"payment_method_id" validate:"required,max=128"`
	FilterColumn    string    `json:"filterColumn,omitempty" yaml:"filter_column"`
	FilterValues    []string  `json:"filterValues,omitempty" yaml:"filter_values"`
	AmountColumn    string    `json:"amountColumn" yaml:"amount_column" validate:"required"`
	RefundColumn    string    `json:"refundColumn,omitempty" yaml:"refund_column"`
	TaxMethod       TaxMethod `json:"taxMethod" yaml:"tax_method" validate:"omitempty,oneof=none fixed_percent fixed_amount column_based"`
	TaxValue        float64   `json:"taxValue" yaml:"tax_value" validate:"gte=0"`
	TaxColumn       string    `json:"taxColumn,omitempty" yaml:"tax_column" validate:"required_if=TaxMethod column_based"`
	// HeaderRowIndex is the 0-based sheet row holding the column titles.
	// Nil means row 0.
	HeaderRowIndex *int      `json:"headerRowIndex,omitempty" yaml:"header_row_index" validate:"omitempty,gte=0"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero" yaml:"-"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that s can drive a calculation.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// HeaderRow returns the configured header row or 0.
func (s Settings) HeaderRow() int {
	if s.HeaderRowIndex == nil {
		return 0
	}
	return *s.HeaderRowIndex
}

// Totals returns the calculator input described by s.
func (s Settings) Totals() TotalsInput {
	return TotalsInput{
		AmountColumn: s.AmountColumn,
		RefundColumn: s.RefundColumn,
		TaxMethod:    s.TaxMethod,
		TaxValue:     s.TaxValue,
		TaxColumn:    s.TaxColumn,
	}
}

// TotalsInput is what CalculateTotals needs from the settings.
type TotalsInput struct {
	AmountColumn string
	RefundColumn string
	TaxMethod    TaxMethod
	TaxValue     float64
	TaxColumn    string
}

// Calculation holds the deposit totals, each rounded to 2 decimal places.
type Calculation struct {
	TotalAmount     float64 `json:"totalAmount"`
	TotalRefunds    float64 `json:"totalRefunds"`
	NetAmount       float64 `json:"netAmount"`
	TaxAmount       float64 `json:"taxAmount"`
	FinalAmount     float64 `json:"finalAmount"`
	RowsAfterFilter int     `json:"rowsAfterFilter"`
	// InvalidCells counts numeric cells that failed to parse and were
	// counted as zero.
	InvalidCells int `json:"invalidCells"`
}

// Record is a saved deposit.
type Record struct {
	ID              uuid.UUID `json:"id"`
	PaymentMethodID string    `json:"paymentMethodId" validate:"required,max=128"`
	FileName        string    `json:"fileName" validate:"max=255"`
	DepositDate     time.Time `json:"depositDate" validate:"required"`
	CurrencyCode    string    `json:"currencyCode" validate:"omitempty,len=3,alpha"`
	// UploadID points at the archived source file, when one was kept.
	UploadID *uuid.UUID `json:"uploadId,omitempty"`
	Calculation
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields a caller must provide.
func (r Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}
