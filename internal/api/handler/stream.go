package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/servicenow/marketplace-be/internal/api/dto"
	"github.com/servicenow/marketplace-be/internal/job"
)

// StreamJobs handles GET /api/v1/jobs/stream
// Streams the signed-in customer's job projection as server-sent events, one
// full snapshot per store change.
func (h *JobHandler) StreamJobs(c *gin.Context) {
	userID := CurrentUserID(c)
	h.stream(c, job.Filter{CustomerID: userID})
}

// StreamOpenJobs handles GET /api/v1/jobs/open/stream
// Streams the unclaimed pool to an idle worker.
func (h *JobHandler) StreamOpenJobs(c *gin.Context) {
	h.stream(c, job.Filter{Status: job.StatusRequested})
}

func (h *JobHandler) stream(c *gin.Context, filter job.Filter) {
	sub, err := h.store.Subscribe(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer sub.Close()

	h.logger.Debug("Job stream opened",
		slog.String("client", c.ClientIP()),
	)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				return false
			}
			if snap.Err != nil {
				c.SSEvent("error", gin.H{"error": snap.Err.Error()})
				return false
			}
			c.SSEvent("jobs", dto.ListJobsResponse{Jobs: dto.FromJobs(snap.Jobs)})
			return true

		case <-c.Request.Context().Done():
			return false
		}
	})
}
