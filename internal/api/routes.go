package api

import (
	"github.com/gin-gonic/gin"

	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
)

// SetupRoutes sets up the API routes. Service routes sit behind shared-key
// signature verification; health and metrics stay open.
func SetupRoutes(handler *Handler, cred *core.KeyCredential) *gin.Engine {
	router := gin.New()

	// Match on the escaped path so setting keys may contain slashes
	// (clients send them percent-encoded).
	router.UseRawPath = true

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Metrics())

	// Health check and metrics
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", MetricsHandler())

	auth := router.Group("/", SharedKeyAuth(cred))
	{
		// Configuration settings
		kv := auth.Group("/kv")
		{
			kv.GET("", handler.ListSettings)
			kv.GET("/:key", handler.GetSetting)
			kv.PUT("/:key", handler.PutSetting)
			kv.DELETE("/:key", handler.DeleteSetting)
		}
		locks := auth.Group("/locks")
		{
			locks.PUT("/:key", handler.LockSetting)
			locks.DELETE("/:key", handler.UnlockSetting)
		}

		// Container registry
		acr := auth.Group("/acr/repositories")
		{
			acr.GET("", handler.ListRepositories)
			acr.POST("", handler.CreateRepository)
			acr.GET("/:name", handler.GetRepository)
			acr.PATCH("/:name", handler.UpdateRepository)
			acr.DELETE("/:name", handler.DeleteRepository)
		}

		// Batch jobs
		jobs := auth.Group("/batch/jobs")
		{
			jobs.GET("", handler.ListJobs)
			jobs.POST("", handler.CreateJob)
			jobs.GET("/:id", handler.GetJob)
			jobs.DELETE("/:id", handler.DeleteJob)
			jobs.POST("/:id/:action", handler.TransitionJob)
		}

		// Queues and messages
		queues := auth.Group("/queues")
		{
			queues.GET("", handler.ListQueues)
			queues.PUT("/:name", handler.CreateQueue)
			queues.GET("/:name", handler.GetQueue)
			queues.DELETE("/:name", handler.DeleteQueue)
			queues.POST("/:name/messages", handler.SendMessage)
			queues.POST("/:name/messages/head", handler.ReceiveMessage)
			queues.POST("/:name/messages/peek", handler.PeekMessage)
			queues.DELETE("/:name/messages/:id/:token", handler.CompleteMessage)
			queues.PUT("/:name/messages/:id/:token", handler.AbandonMessage)
		}
	}

	return router
}
