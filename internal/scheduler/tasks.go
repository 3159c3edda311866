// Package scheduler runs the periodic maintenance passes over asynq:
// re-routing stranded leads, reconciling pending billing, trimming the
// delivery queue, and rolling billed leads into invoices. Every pass is
// serialized across instances through a Redis lock, so running the
// worker on every node is safe.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRoutingSweep = "routing:sweep"

const TaskBillingReconcile = "billing:reconcile"

const TaskQueuePurge = "queue:purge"

const TaskInvoiceGenerate = "invoice:generate"

// RoutingSweepPayload bounds one re-routing pass.
type RoutingSweepPayload struct {
	GraceMinutes int `json:"graceMinutes"`
	Limit        int `json:"limit"`
}

// BillingReconcilePayload bounds one reconciliation pass.
type BillingReconcilePayload struct {
	Limit int `json:"limit"`
}

func NewRoutingSweepTask(payload RoutingSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoutingSweep, data), nil
}

func ParseRoutingSweepPayload(task *asynq.Task) (RoutingSweepPayload, error) {
	var payload RoutingSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RoutingSweepPayload{}, err
	}
	return payload, nil
}

func NewBillingReconcileTask(payload BillingReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingReconcile, data), nil
}

func ParseBillingReconcilePayload(task *asynq.Task) (BillingReconcilePayload, error) {
	var payload BillingReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BillingReconcilePayload{}, err
	}
	return payload, nil
}

func NewQueuePurgeTask() *asynq.Task {
	return asynq.NewTask(TaskQueuePurge, nil)
}

func NewInvoiceGenerateTask() *asynq.Task {
	return asynq.NewTask(TaskInvoiceGenerate, nil)
}
