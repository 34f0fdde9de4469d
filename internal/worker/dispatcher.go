package worker

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const (
	QueueTimeline = "jobs:timeline"
	QueueMirror   = "jobs:mirror"
	QueueReport   = "jobs:report"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// TimelineJobPayload appends one audit event to a batch's timeline.
type TimelineJobPayload struct {
	TenantID  string `json:"tenant_id"`
	BatchID   string `json:"batch_id"`
	LotID     string `json:"lot_id,omitempty"`
	EventType string `json:"event_type"`
	Message   string `json:"message"`
	ActorID   string `json:"actor_id"`
}

// MirrorJobPayload resyncs one tank's registry mirror record.
type MirrorJobPayload struct {
	TenantID string `json:"tenant_id"`
	TankID   string `json:"tank_id"`
}

// ReportJobPayload generates a batch movement report PDF and mails it.
type ReportJobPayload struct {
	TenantID string `json:"tenant_id"`
	BatchID  string `json:"batch_id"`
	ToEmail  string `json:"to_email"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueTimeline pushes an audit event job to Redis.
func (d *Dispatcher) EnqueueTimeline(ctx context.Context, payload TimelineJobPayload) error {
	return d.enqueue(ctx, QueueTimeline, "timeline", payload)
}

// EnqueueMirrorSync pushes a tank registry sync job to Redis.
func (d *Dispatcher) EnqueueMirrorSync(ctx context.Context, payload MirrorJobPayload) error {
	return d.enqueue(ctx, QueueMirror, "mirror_sync", payload)
}

// EnqueueReport pushes a batch report job to Redis.
func (d *Dispatcher) EnqueueReport(ctx context.Context, payload ReportJobPayload) error {
	return d.enqueue(ctx, QueueReport, "report", payload)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}
