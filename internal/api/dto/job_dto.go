package dto

import (
	"time"

	"github.com/servicenow/marketplace-be/internal/job"
)

type CreateJobRequest struct {
	Description string `json:"description"`
}

type ConfirmCompletionRequest struct {
	Code string `json:"code"`
}

type RequestCompletionResponse struct {
	JobID         string `json:"job_id"`
	CompletionOTP string `json:"completion_otp"`
}

type ListJobsResponse struct {
	Jobs []JobDTO `json:"jobs"`
}

// JobDTO is the wire shape of a job. The completion code never leaves the
// store through this type; it is only returned by the request-completion
// endpoint, to the worker who triggered it.
type JobDTO struct {
	JobID       string `json:"job_id"`
	CustomerID  string `json:"customer_id"`
	WorkerID    string `json:"worker_id,omitempty"`
	ServiceType string `json:"service_type"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// FromJob converts a domain job to its wire shape.
func FromJob(j job.Job) JobDTO {
	return JobDTO{
		JobID:       j.ID,
		CustomerID:  j.CustomerID,
		WorkerID:    j.WorkerID,
		ServiceType: j.ServiceType,
		Description: j.Description,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
	}
}

// FromJobs converts a job list to its wire shape.
func FromJobs(jobs []job.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = FromJob(j)
	}
	return out
}
