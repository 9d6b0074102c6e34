package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ExistingSKUs returns which of the given SKUs are already present.
func (r *Repository) ExistingSKUs(ctx context.Context, skus []string) (map[string]bool, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT sku FROM products WHERE sku = ANY($1)`, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]bool, len(skus))
	for rows.Next() {
		var sku string
		if err := rows.Scan(&sku); err != nil {
			return nil, err
		}
		existing[sku] = true
	}
	return existing, rows.Err()
}

// UpsertProducts writes records keyed on SKU, overwriting on conflict.
func (r *Repository) UpsertProducts(ctx context.Context, records []ImportRecord) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`INSERT INTO products (sku, name, uom, price, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
ON CONFLICT (sku) DO UPDATE
SET name = EXCLUDED.name, uom = EXCLUDED.uom, price = EXCLUDED.price, is_active = EXCLUDED.is_active, updated_at = NOW()`,
			record.SKU, record.Name, record.UOM, record.Price, record.IsActive)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// List returns catalog entries with optional filters.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]Product, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	query := `SELECT id, sku, name, uom, price, is_active, created_at, updated_at FROM products WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		query += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR sku ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		query += ` AND is_active = $` + strconv.Itoa(argCount)
		args = append(args, *filters.IsActive)
	}

	query += ` ORDER BY sku`
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	if filters.Offset > 0 {
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UOM, &p.Price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Get returns one product by id.
func (r *Repository) Get(ctx context.Context, id int64) (Product, error) {
	if r == nil {
		return Product{}, errors.New("catalog repository not initialised")
	}
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, uom, price, is_active, created_at, updated_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.UOM, &p.Price, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}
