package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

var artifactNamespace = uuid.MustParse("6f1c0a52-93b4-4d4e-9c1e-5b7f3f0d2a61")

// Provenance records where an artifact came from.
type Provenance struct {
	Model         string    `json:"model" bson:"model"`
	EstimatedCost float64   `json:"estimated_cost" bson:"estimated_cost"`
	CompletedAt   time.Time `json:"completed_at" bson:"completed_at"`
	SourceURL     string    `json:"source_url,omitempty" bson:"source_url,omitempty"`
}

// Artifact is a completed, durably stored generation output.
type Artifact struct {
	ID              string     `json:"id" bson:"id"`
	BatchID         string     `json:"batch_id" bson:"batch_id"`
	OperationIndex  int        `json:"operation_index" bson:"operation_index"`
	URL             string     `json:"url" bson:"url"`
	SizeBytes       int64      `json:"size_bytes" bson:"size_bytes"`
	DurationSeconds int        `json:"duration_seconds" bson:"duration_seconds"`
	Prompt          string     `json:"prompt" bson:"prompt"`
	Provenance      Provenance `json:"provenance" bson:"provenance"`
	CreatedAt       time.Time  `json:"created_at" bson:"created_at"`
}

// ArtifactID derives the identity of the artifact produced by operation index
// of batch batchID. The same inputs always yield the same id, so a completion
// observed on several ticks maps to one settled-log entry.
func ArtifactID(batchID string, index int) string {
	return uuid.NewSHA1(artifactNamespace, []byte(batchID+"/"+strconv.Itoa(index))).String()
}

// NewArtifacts returns the incoming artifacts whose id is not in library nor
// repeated earlier in incoming, and the charge left of completed once the
// skipped ones are taken off.
func NewArtifacts(library, incoming []Artifact, completed int) ([]Artifact, int) {
	seen := make(map[string]struct{}, len(library)+len(incoming))
	for _, a := range library {
		seen[a.ID] = struct{}{}
	}
	fresh := make([]Artifact, 0, len(incoming))
	for _, a := range incoming {
		if _, dup := seen[a.ID]; dup {
			completed--
			continue
		}
		seen[a.ID] = struct{}{}
		fresh = append(fresh, a)
	}
	return fresh, max(completed, 0)
}
