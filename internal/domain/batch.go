package domain

import "time"

// GenerationRequest is one unit of work for the video collaborator.
type GenerationRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
	AspectRatio     string `json:"aspect_ratio"`
	Audio           bool   `json:"audio"`
}

// DurationBounds is the inclusive duration range the collaborator accepts.
type DurationBounds struct {
	Min int
	Max int
}

// Clamp forces seconds into the bounds.
func (b DurationBounds) Clamp(seconds int) int {
	if seconds < b.Min {
		return b.Min
	}
	if b.Max > 0 && seconds > b.Max {
		return b.Max
	}
	return seconds
}

// BatchStatus is the aggregate state of a batch.
type BatchStatus string

const (
	BatchStatusGenerating BatchStatus = "generating"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusTimedOut   BatchStatus = "timed_out"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusTimedOut || s == BatchStatusFailed
}

// OperationStatus is the state of one collaborator job.
type OperationStatus string

const (
	OperationPending   OperationStatus = "pending"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
	OperationExpired   OperationStatus = "expired"
)

// Terminal reports whether the operation will not be queried again.
func (s OperationStatus) Terminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationExpired
}

// QuotaStatus describes what settlement has done for a batch so far.
type QuotaStatus string

const (
	QuotaPending         QuotaStatus = "pending"
	QuotaDeducted        QuotaStatus = "deducted"
	QuotaPartialDeducted QuotaStatus = "partial_deducted"
	// QuotaNone marks a terminal batch that produced nothing to settle.
	QuotaNone QuotaStatus = "none"
)

// Operation tracks one request inside a batch.
type Operation struct {
	Index         int               `json:"index"`
	Handle        string            `json:"handle"`
	Status        OperationStatus   `json:"status"`
	Request       GenerationRequest `json:"request"`
	EstimatedCost float64           `json:"estimated_cost"`
	Artifact      *Artifact         `json:"artifact,omitempty"`
	Error         string            `json:"error,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Batch groups the operations of one submission for polling and settlement.
type Batch struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	Operations    []Operation `json:"operations"`
	SettledIDs    []string    `json:"settled_ids"`
	Status        BatchStatus `json:"status"`
	QuotaStatus   QuotaStatus `json:"quota_status"`
	EstimatedCost float64     `json:"estimated_cost"`
	Ticks         int         `json:"ticks"`
	CreatedAt     time.Time   `json:"created_at"`
	LastPollAt    time.Time   `json:"last_poll_at"`
	CompletedAt   time.Time   `json:"completed_at"`
}

// Clone returns a deep copy safe to hand to readers.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	out := *b
	out.Operations = make([]Operation, len(b.Operations))
	for i, op := range b.Operations {
		if op.Artifact != nil {
			a := *op.Artifact
			op.Artifact = &a
		}
		out.Operations[i] = op
	}
	out.SettledIDs = append([]string(nil), b.SettledIDs...)
	return &out
}

// IsSettled reports whether artifactID has been settled for this batch.
func (b *Batch) IsSettled(artifactID string) bool {
	for _, id := range b.SettledIDs {
		if id == artifactID {
			return true
		}
	}
	return false
}

// MarkSettled records artifactID as settled. It never removes entries.
func (b *Batch) MarkSettled(artifactID string) {
	if b.IsSettled(artifactID) {
		return
	}
	b.SettledIDs = append(b.SettledIDs, artifactID)
}

// PendingIndexes returns the indexes of operations still awaiting a result.
func (b *Batch) PendingIndexes() []int {
	var out []int
	for i, op := range b.Operations {
		if op.Status == OperationPending {
			out = append(out, i)
		}
	}
	return out
}

// AllTerminal reports whether every operation reached a terminal state.
func (b *Batch) AllTerminal() bool {
	for _, op := range b.Operations {
		if !op.Status.Terminal() {
			return false
		}
	}
	return true
}

// Unsettled returns completed artifacts that have not been settled yet.
func (b *Batch) Unsettled() []Artifact {
	var out []Artifact
	for _, op := range b.Operations {
		if op.Status != OperationCompleted || op.Artifact == nil {
			continue
		}
		if b.IsSettled(op.Artifact.ID) {
			continue
		}
		out = append(out, *op.Artifact)
	}
	return out
}

// Artifacts returns every artifact discovered so far, settled or not.
func (b *Batch) Artifacts() []Artifact {
	var out []Artifact
	for _, op := range b.Operations {
		if op.Artifact != nil {
			out = append(out, *op.Artifact)
		}
	}
	return out
}
