package outbound

import (
	"context"

	"github.com/google/uuid"
)

// ProviderJobState is the provider-side state of a training job.
type ProviderJobState string

const (
	ProviderJobQueued     ProviderJobState = "queued"
	ProviderJobProcessing ProviderJobState = "processing"
	ProviderJobSucceeded  ProviderJobState = "succeeded"
	ProviderJobFailed     ProviderJobState = "failed"
	ProviderJobCanceled   ProviderJobState = "canceled"
)

// TrainingJob is the input for a provider training run.
type TrainingJob struct {
	UserID    uuid.UUID
	Name      string
	ImageURLs []string
}

// ProviderUpdate is a status report for a training job, delivered by webhook
// or obtained by polling.
type ProviderUpdate struct {
	JobID   string           `json:"job_id"`
	State   ProviderJobState `json:"state"`
	Version string           `json:"version,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// DeliveryKey identifies one delivery for deduplication.
func (u *ProviderUpdate) DeliveryKey() string {
	return u.JobID + ":" + string(u.State)
}

// TrainingProviderPort defines the external training service.
type TrainingProviderPort interface {
	// EnqueueTraining starts a job and returns its provider ID.
	EnqueueTraining(ctx context.Context, job *TrainingJob) (string, error)

	// CancelTraining cancels a job.
	CancelTraining(ctx context.Context, jobID string) error

	// GetTraining polls a job's current state.
	GetTraining(ctx context.Context, jobID string) (*ProviderUpdate, error)
}

// InferenceRequest is the input for a single image generation.
type InferenceRequest struct {
	ModelVersion string
	Prompt       string
}

// InferenceProviderPort defines the external inference service.
type InferenceProviderPort interface {
	// RunInference generates one image and returns its URL.
	RunInference(ctx context.Context, req *InferenceRequest) (string, error)
}
