package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/payradar/payradar/api/handlers"
	"github.com/payradar/payradar/api/middleware"
	"github.com/payradar/payradar/internal/repository"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/services"
)

// RegisterRoutes sets up all API endpoints.
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, apiKey string) {
	if s == nil {
		panic("services cannot be nil")
	}
	if repos == nil {
		panic("repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(middleware.RequestIDMiddleware())

	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-PAYRADAR-API-KEY",
		ValidAPIKey: apiKey,
	})

	v1 := r.Group("/v1")
	v1.Use(apiKeyMiddleware)
	v1.Use(middleware.UserIDMiddleware())
	{
		auth := v1.Group("/auth")
		{
			auth.GET("/:provider/url", handlers.AuthorizeURL(s.Providers))
			auth.GET("/:provider/callback", handlers.OAuthCallback(s.Providers, repos.MailAccountRepository))
			auth.POST("/:provider/refresh", handlers.RefreshProviderTokens(s.TokenVault))
		}

		accounts := v1.Group("/accounts")
		{
			accounts.GET("", handlers.ListAccounts(repos.MailAccountRepository))
			accounts.POST("", handlers.CreateAccount(repos.MailAccountRepository))
			accounts.POST("/:id/sync", handlers.SyncAccount(s.SyncService))
			accounts.GET("/:id/messages", handlers.AccountMessages(repos.MessageRepository))
		}

		messages := v1.Group("/messages")
		{
			messages.GET("/:id", handlers.GetMessage(repos.MessageRepository))
			messages.POST("/:id/analyze", handlers.AnalyzeMessage(s.AnalysisService))
		}

		v1.GET("/attachments/:id", handlers.DownloadAttachment(repos.AttachmentRepository))

		v1.POST("/analysis/batch", handlers.AnalyzeBatch(s.AnalysisService))

		records := v1.Group("/records")
		{
			records.GET("", handlers.ListRecords(repos.AnalysisRecordRepository))
			records.GET("/stats/monthly", handlers.MonthlyStats(repos.AnalysisRecordRepository))
			records.GET("/stats/daily", handlers.DailyStats(repos.AnalysisRecordRepository))
			records.POST("/duplicates/detect", handlers.DetectDuplicates(s.DuplicateService))
			records.POST("/duplicates/mark", handlers.MarkDuplicates(s.DuplicateService))
			records.POST("/duplicates/reset", handlers.ResetDuplicates(s.DuplicateService))
		}

		queue := v1.Group("/queue")
		{
			queue.GET("/status", handlers.QueueStatus(s.AnalysisQueue))
			queue.POST("/enqueue", handlers.QueueEnqueue(s.AnalysisQueue))
			queue.POST("/drain", handlers.QueueDrain(s.AnalysisQueue))
			queue.POST("/clear", handlers.QueueClear(s.AnalysisQueue))
		}
	}
}
