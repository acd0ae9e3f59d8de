package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SettingsRepository stores settings keyed by payment method id.
type SettingsRepository interface {
	GetSettings(ctx context.Context, paymentMethodID string) (*Settings, error)
	SaveSettings(ctx context.Context, settings *Settings) error
}

// RecordRepository stores computed deposits.
type RecordRepository interface {
	SaveRecord(ctx context.Context, record *Record) error
	ListRecords(ctx context.Context, paymentMethodID string, limit int) ([]*Record, error)
}

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements SettingsRepository and RecordRepository.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a repository on db, usually a *pgxpool.Pool.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetSettings returns ErrNotFound when the payment method has no settings.
func (r *PostgresRepository) GetSettings(ctx context.Context, paymentMethodID string) (*Settings, error) {
	query := `
		SELECT payment_method_id, filter_column, filter_values, amount_column, refund_column,
			tax_method, tax_value, tax_column, header_row_index, updated_at
		FROM deposit_settings
		WHERE payment_method_id = $1`

	s := &Settings{}
	var taxMethod string
	err := r.db.QueryRow(ctx, query, paymentMethodID).Scan(
		&s.PaymentMethodID,
		&s.FilterColumn,
		&s.FilterValues,
		&s.AmountColumn,
		&s.RefundColumn,
		&taxMethod,
		&s.TaxValue,
		&s.TaxColumn,
		&s.HeaderRowIndex,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit settings: %w", err)
	}
	s.TaxMethod = TaxMethod(taxMethod)
	return s, nil
}

// SaveSettings inserts or replaces the settings of a payment method.
func (r *PostgresRepository) SaveSettings(ctx context.Context, s *Settings) error {
	query := `
		INSERT INTO deposit_settings (
			payment_method_id, filter_column, filter_values, amount_column, refund_column,
			tax_method, tax_value, tax_column, header_row_index
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_method_id) DO UPDATE SET
			filter_column = EXCLUDED.filter_column,
			filter_values = EXCLUDED.filter_values,
			amount_column = EXCLUDED.amount_column,
			refund_column = EXCLUDED.refund_column,
			tax_method = EXCLUDED.tax_method,
			tax_value = EXCLUDED.tax_value,
			tax_column = EXCLUDED.tax_column,
			header_row_index = EXCLUDED.header_row_index,
			updated_at = now()
		RETURNING updated_at`

	filterValues := s.FilterValues
	if filterValues == nil {
		filterValues = []string{}
	}
	taxMethod := s.TaxMethod
	if taxMethod == "" {
		taxMethod = TaxMethodNone
	}

	err := r.db.QueryRow(ctx, query,
		s.PaymentMethodID,
		s.FilterColumn,
		filterValues,
		s.AmountColumn,
		s.RefundColumn,
		string(taxMethod),
		s.TaxValue,
		s.TaxColumn,
		s.HeaderRowIndex,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save deposit settings: %w", err)
	}
	s.TaxMethod = taxMethod
	return nil
}

// SaveRecord inserts a deposit, assigning an id when it has none.
func (r *PostgresRepository) SaveRecord(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO deposits (
			id, payment_method_id, file_name, deposit_date, currency_code,
			total_amount, total_refunds, net_amount, tax_amount, final_amount,
			rows_after_filter, invalid_cells, upload_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, query,
		rec.ID,
		rec.PaymentMethodID,
		rec.FileName,
		rec.DepositDate,
		rec.CurrencyCode,
		rec.TotalAmount,
		rec.TotalRefunds,
		rec.NetAmount,
		rec.TaxAmount,
		rec.FinalAmount,
		rec.RowsAfterFilter,
		rec.InvalidCells,
		rec.UploadID,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save deposit: %w", err)
	}
	return nil
}

// ListRecords returns the latest deposits of a payment method, newest first.
func (r *PostgresRepository) ListRecords(ctx context.Context, paymentMethodID string, limit int) ([]*Record, error) {
	query := `
		SELECT id, payment_method_id, file_name, deposit_date, currency_code,
			total_amount, total_refunds, net_amount, tax_amount, final_amount,
			rows_after_filter, invalid_cells, upload_id, created_at
		FROM deposits
		WHERE payment_method_id = $1
		ORDER BY deposit_date DESC, created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, paymentMethodID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(
			&rec.ID,
			&rec.PaymentMethodID,
			&rec.FileName,
			&rec.DepositDate,
			&rec.CurrencyCode,
			&rec.TotalAmount,
			&rec.TotalRefunds,
			&rec.NetAmount,
			&rec.TaxAmount,
			&rec.FinalAmount,
			&rec.RowsAfterFilter,
			&rec.InvalidCells,
			&rec.UploadID,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deposit: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deposits: %w", err)
	}
	return records, nil
}
