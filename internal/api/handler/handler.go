package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/servicenow/marketplace-be/internal/identity"
	"github.com/servicenow/marketplace-be/internal/job"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Engine   *job.Engine
	Store    job.Store
	Identity identity.Provider
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	engine *job.Engine
	store  job.Store
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		engine: deps.Engine,
		store:  deps.Store,
	}
}

// respondError maps an engine or store error onto the HTTP taxonomy:
// validation 400, missing identity 401, lost transition 409, store trouble
// 502.
func (h *JobHandler) respondError(c *gin.Context, err error) {
	var validationErr *job.ValidationError
	var transportErr *job.TransportError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})

	case errors.Is(err, job.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not logged in"})

	case errors.Is(err, job.ErrPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": "job state has changed, refresh and try again"})

	case errors.Is(err, job.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})

	case errors.As(err, &transportErr):
		h.logger.Error("Store unreachable", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "service temporarily unavailable"})

	default:
		h.logger.Error("Unhandled error", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
