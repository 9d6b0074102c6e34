package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	ExistingSKUs(ctx context.Context, skus []string) (map[string]bool, error)
	UpsertProducts(ctx context.Context, records []ImportRecord) error
	List(ctx context.Context, filters ListFilters) ([]Product, error)
	Get(ctx context.Context, id int64) (Product, error)
}

// Service reconciles external product imports against the catalog.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService constructs catalog service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ReconcileImport partitions the batch into new and updated SKUs before the
// upsert and reports counts from that partition.
//
// The partition read and the upsert are separate statements, so a concurrent
// writer inserting the same SKU in between can skew newCount/updateCount.
// The upsert itself stays idempotent; the counts are a best-effort reporting
// metric. A failed partition read degrades to newCount = processed with a
// warning; a failed upsert aborts the call.
func (s *Service) ReconcileImport(ctx context.Context, records []ImportRecord) (ImportSummary, error) {
	if len(records) == 0 {
		return ImportSummary{}, fmt.Errorf("%w: products must not be empty", ErrValidation)
	}
	// Normalise into a copy; the caller's batch stays untouched.
	batch := make([]ImportRecord, len(records))
	skus := make([]string, len(records))
	for i, record := range records {
		sku := strings.TrimSpace(record.SKU)
		if sku == "" {
			return ImportSummary{}, fmt.Errorf("%w: record %d missing sku", ErrValidation, i)
		}
		record.SKU = sku
		batch[i] = record
		skus[i] = sku
	}

	summary := ImportSummary{Processed: len(records)}
	existing, err := s.repo.ExistingSKUs(ctx, skus)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("existing sku lookup failed, degrading import counts", slog.Any("error", err))
		}
		summary.NewCount = len(records)
	} else {
		for _, sku := range skus {
			if existing[sku] {
				summary.UpdateCount++
			} else {
				summary.NewCount++
			}
		}
	}

	if err := s.repo.UpsertProducts(ctx, batch); err != nil {
		return ImportSummary{}, err
	}
	return summary, nil
}

// List returns catalog entries.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	return s.repo.List(ctx, filters)
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}
