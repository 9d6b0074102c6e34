package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryReconcile triggers a ledger-versus-cache drift sweep.
	TaskInventoryReconcile = "inventory:reconcile"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// InventoryReconcilePayload scopes a reconciliation run.
type InventoryReconcilePayload struct {
	RunID        string    `json:"run_id"`
	WarehouseID  int64     `json:"warehouse_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInventoryReconcileTask constructs an Asynq task for drift reconciliation.
// A zero warehouse id sweeps every warehouse.
func NewInventoryReconcileTask(warehouseID int64) (*asynq.Task, error) {
	payload := InventoryReconcilePayload{
		RunID:        uuid.NewString(),
		WarehouseID:  warehouseID,
		ScheduledFor: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window in hours.
type IdempotencyCleanupPayload struct {
	RunID       string `json:"run_id"`
	MaxAgeHours int    `json:"max_age_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key pruning.
func NewIdempotencyCleanupTask(maxAgeHours int) (*asynq.Task, error) {
	payload := IdempotencyCleanupPayload{RunID: uuid.NewString(), MaxAgeHours: maxAgeHours}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
