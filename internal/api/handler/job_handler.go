package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/servicenow/marketplace-be/internal/api/dto"
	"github.com/servicenow/marketplace-be/internal/job"
)

// CreateJob handles POST /api/v1/jobs
// Creates a new service request for the signed-in customer.
func (h *JobHandler) CreateJob(c *gin.Context) {
	userID := CurrentUserID(c)

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID, err := h.engine.CreateJob(c.Request.Context(), userID, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}

	created, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromJob(*created))
}

// ListJobs handles GET /api/v1/jobs
// Lists the signed-in customer's jobs, the same projection their live view
// observes.
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID := CurrentUserID(c)

	jobs, err := h.store.List(c.Request.Context(), job.Filter{CustomerID: userID})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: dto.FromJobs(jobs)})
}

// ListOpenJobs handles GET /api/v1/jobs/open
// Lists the unclaimed pool every idle worker polls; first to accept wins.
func (h *JobHandler) ListOpenJobs(c *gin.Context) {
	jobs, err := h.store.List(c.Request.Context(), job.Filter{Status: job.StatusRequested})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: dto.FromJobs(jobs)})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns a job to either of its parties.
func (h *JobHandler) GetJob(c *gin.Context) {
	userID := CurrentUserID(c)

	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	j, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Open jobs are visible to any worker browsing the pool; bound jobs
	// only to their parties.
	if j.Status != job.StatusRequested && j.CustomerID != userID && j.WorkerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(*j))
}

// AcceptJob handles POST /api/v1/jobs/:job_id/accept
// Claims an open job for the signed-in worker.
func (h *JobHandler) AcceptJob(c *gin.Context) {
	userID := CurrentUserID(c)

	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if err := h.engine.AcceptJob(c.Request.Context(), jobID, userID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": job.StatusAccepted,
	})
}

// StartJob handles POST /api/v1/jobs/:job_id/start
// Moves an accepted job to in_progress.
func (h *JobHandler) StartJob(c *gin.Context) {
	userID := CurrentUserID(c)

	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	if err := h.engine.BeginWork(c.Request.Context(), jobID, userID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": job.StatusInProgress,
	})
}

// RequestCompletion handles POST /api/v1/jobs/:job_id/request-completion
// Mints the completion code and returns it to the worker only. The customer
// gets it in person; that handoff is the proof the worker was on site.
func (h *JobHandler) RequestCompletion(c *gin.Context) {
	userID := CurrentUserID(c)

	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	otp, err := h.engine.RequestCompletion(c.Request.Context(), jobID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RequestCompletionResponse{
		JobID:         jobID,
		CompletionOTP: otp,
	})
}

// ConfirmCompletion handles POST /api/v1/jobs/:job_id/confirm
// Completes the job if the supplied code matches.
func (h *JobHandler) ConfirmCompletion(c *gin.Context) {
	userID := CurrentUserID(c)

	jobID, ok := h.jobIDParam(c)
	if !ok {
		return
	}

	var req dto.ConfirmCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if err := h.engine.ConfirmCompletion(c.Request.Context(), jobID, userID, req.Code); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": job.StatusCompleted,
	})
}

// jobIDParam validates the job_id path parameter.
func (h *JobHandler) jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id is required",
		})
		return "", false
	}

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}

	return jobID, true
}
