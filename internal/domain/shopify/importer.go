package shopify

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/FACorreiaa/deposit-recon/pkg/observability"
)

// Importer runs ParseFile with logging, metrics and tracing.
type Importer struct {
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewImporter creates an importer. metrics may be nil.
func NewImporter(metrics *observability.Metrics, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Importer{
		metrics: metrics,
		logger:  logger.With(slog.String("service", "shopify")),
	}
}

// Result is an import together with its grouped sales.
type Result struct {
	*ImportResult
	Grouped []ImportRow `json:"grouped"`
}

// Import parses a Shopify export and groups its sales.
func (i *Importer) Import(ctx context.Context, data []byte, fileName string, headerRowIndex int) (result *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "shopify.import",
		attribute.String("file.name", fileName),
		attribute.Int("file.header_row", headerRowIndex),
	)
	defer func() { observability.EndSpan(span, err) }()

	started := time.Now()
	parsed, err := ParseFile(data, fileName, headerRowIndex, i.logger)
	i.metrics.ObserveParse(observability.PipelineShopify, started, err)
	if err != nil {
		i.logger.WarnContext(ctx, "failed to parse shopify export",
			slog.String("file", fileName),
			slog.Any("error", err),
		)
		return nil, err
	}

	result = &Result{ImportResult: parsed, Grouped: GroupSales(parsed.Rows)}
	span.SetAttributes(
		attribute.Int("shopify.rows", parsed.RowCount),
		attribute.Int("shopify.groups", len(result.Grouped)),
	)
	i.logger.InfoContext(ctx, "shopify export imported",
		slog.String("file", fileName),
		slog.Int("rows", parsed.RowCount),
		slog.Int("dropped", parsed.DroppedRows),
		slog.Int("groups", len(result.Grouped)),
	)
	return result, nil
}
