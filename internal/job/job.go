package job

import "time"

// Job statuses. A job only ever moves forward:
// requested -> accepted -> in_progress -> awaiting_confirmation -> completed
const (
	StatusRequested            = "requested"
	StatusAccepted             = "accepted"
	StatusInProgress           = "in_progress"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusCompleted            = "completed"
)

// ServiceTypeElectrician is the only service category currently offered.
const ServiceTypeElectrician = "electrician"

// Job is a single service request moving through the lifecycle.
type Job struct {
	ID            string    `db:"job_id" json:"job_id"`
	CustomerID    string    `db:"customer_id" json:"customer_id"`
	WorkerID      string    `db:"worker_id" json:"worker_id,omitempty"`
	ServiceType   string    `db:"service_type" json:"service_type"`
	Description   string    `db:"description" json:"description"`
	Status        string    `db:"status" json:"status"`
	CompletionOTP string    `db:"completion_otp" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ValidStatus reports whether s is one of the known job statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusInProgress,
		StatusAwaitingConfirmation, StatusCompleted:
		return true
	}
	return false
}
