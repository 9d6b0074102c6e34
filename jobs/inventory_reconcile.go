package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/wareline/wareline/internal/jobs"
	"github.com/wareline/wareline/internal/platform/db"
)

// DriftKey identifies one cached stock row.
type DriftKey struct {
	ProductID   int64
	WarehouseID int64
	LocationID  *int64
}

// DriftRow carries the scan-time quantities for logging. Repair recomputes
// the ledger sum under the row's transaction, so the scanned value is never
// written back.
type DriftRow struct {
	DriftKey
	LedgerQty float64
	CachedQty float64
}

// DriftStore finds cached stock rows that disagree with the movement ledger
// and rewrites them from it.
type DriftStore interface {
	FindDrift(ctx context.Context, warehouseID int64) ([]DriftRow, error)
	Repair(ctx context.Context, key DriftKey) error
}

// InventoryReconcileJob compares cached stock rows against the movement ledger
// and rewrites rows that have drifted. The ledger is the source of truth; the
// cache only exists to make stock reads cheap.
type InventoryReconcileJob struct {
	Store   DriftStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInventoryReconcileJob initialises the reconciliation handler.
func NewInventoryReconcileJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryReconcileJob {
	return &InventoryReconcileJob{
		Store:   &pgDriftStore{pool: pool},
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one reconciliation sweep.
func (j *InventoryReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("inventory reconcile: handler not configured")
	}
	var payload InventoryReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskInventoryReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("run_id", payload.RunID),
		slog.Int64("warehouse_id", payload.WarehouseID),
	)
	logger.Info("starting inventory reconciliation")

	drift, err := j.Store.FindDrift(ctx, payload.WarehouseID)
	if err != nil {
		resultErr = err
		logger.Error("drift scan failed", slog.Any("error", err))
		return resultErr
	}

	repaired := 0
	for _, row := range drift {
		if err := j.Store.Repair(ctx, row.DriftKey); err != nil {
			resultErr = err
			logger.Error("drift repair failed",
				slog.Int64("product_id", row.ProductID),
				slog.Int64("warehouse_id", row.WarehouseID),
				slog.Any("error", err),
			)
			return resultErr
		}
		logger.Warn("stock drift repaired",
			slog.Int64("product_id", row.ProductID),
			slog.Int64("warehouse_id", row.WarehouseID),
			slog.Float64("ledger_qty", row.LedgerQty),
			slog.Float64("cached_qty", row.CachedQty),
		)
		j.metrics().AddDrift(row.WarehouseID, 1)
		repaired++
	}

	logger.Info("completed inventory reconciliation",
		slog.Int("drift_rows", repaired),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

type pgDriftStore struct {
	pool *pgxpool.Pool
}

func (s *pgDriftStore) FindDrift(ctx context.Context, warehouseID int64) ([]DriftRow, error) {
	if s.pool == nil {
		return nil, errors.New("inventory reconcile: pool not configured")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ledger.product_id, ledger.warehouse_id, ledger.location_id,
		       ledger.total::double precision,
		       COALESCE(i.quantity, 0)::double precision
		FROM (
			SELECT product_id, warehouse_id, location_id,
			       SUM(CASE WHEN transaction_type IN ('SHIPMENT','TRANSFER_OUT','ADJUSTMENT_OUT')
			                THEN -quantity ELSE quantity END) AS total
			FROM inventory_movements
			WHERE $1::bigint = 0 OR warehouse_id = $1
			GROUP BY product_id, warehouse_id, location_id
		) ledger
		LEFT JOIN inventory i
		       ON i.product_id = ledger.product_id
		      AND i.warehouse_id = ledger.warehouse_id
		      AND i.location_id IS NOT DISTINCT FROM ledger.location_id
		WHERE COALESCE(i.quantity, 0) <> ledger.total
		ORDER BY ledger.warehouse_id, ledger.product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drift := make([]DriftRow, 0)
	for rows.Next() {
		var row DriftRow
		if err := rows.Scan(&row.ProductID, &row.WarehouseID, &row.LocationID, &row.LedgerQty, &row.CachedQty); err != nil {
			return nil, err
		}
		drift = append(drift, row)
	}
	return drift, rows.Err()
}

// Repair recomputes the signed sum inside its own transaction rather than
// reusing the scanned total. A movement committed between the scan and the
// repair is therefore part of the rewritten quantity, not erased by it.
func (s *pgDriftStore) Repair(ctx context.Context, key DriftKey) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO inventory (product_id, warehouse_id, location_id, quantity, reserved_quantity, updated_at)
			SELECT $1, $2, $3,
			       COALESCE(SUM(CASE WHEN transaction_type IN ('SHIPMENT','TRANSFER_OUT','ADJUSTMENT_OUT')
			                         THEN -quantity ELSE quantity END), 0),
			       0, NOW()
			FROM inventory_movements
			WHERE product_id = $1 AND warehouse_id = $2 AND location_id IS NOT DISTINCT FROM $3
			ON CONFLICT (product_id, warehouse_id, COALESCE(location_id, 0))
			DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`,
			key.ProductID, key.WarehouseID, key.LocationID)
		return err
	})
}

func (j *InventoryReconcileJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}

func (j *InventoryReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *InventoryReconcileJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
