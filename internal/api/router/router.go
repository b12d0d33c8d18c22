package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/servicenow/marketplace-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "marketplace-api",
		})
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes, all behind bearer auth
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.Identity, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a service request
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - The caller's jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/stream - Live customer projection (SSE)
			jobs.GET("/stream", jobHandler.StreamJobs)

			// GET /api/v1/jobs/open - The unclaimed pool
			jobs.GET("/open", jobHandler.ListOpenJobs)

			// GET /api/v1/jobs/open/stream - Live pool projection (SSE)
			jobs.GET("/open/stream", jobHandler.StreamOpenJobs)

			// GET /api/v1/jobs/:job_id - Job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/accept - Worker claims the job
			jobs.POST("/:job_id/accept", jobHandler.AcceptJob)

			// POST /api/v1/jobs/:job_id/start - Worker begins work
			jobs.POST("/:job_id/start", jobHandler.StartJob)

			// POST /api/v1/jobs/:job_id/request-completion - Mint the OTP
			jobs.POST("/:job_id/request-completion", jobHandler.RequestCompletion)

			// POST /api/v1/jobs/:job_id/confirm - Customer confirms with the OTP
			jobs.POST("/:job_id/confirm", jobHandler.ConfirmCompletion)
		}
	}

	return r
}
