package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/payradar/payradar/api"
	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/cron"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/repository"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/services"
	"github.com/payradar/payradar/services/storage"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Attachment payloads go to object storage when R2 is configured,
	// otherwise they stay in Postgres.
	var attachmentStorage interfaces.StorageService
	if cfg.R2StorageConfig.Configured() {
		attachmentStorage = storage.NewR2StorageService(cfg.R2StorageConfig)
	}

	repos := repository.InitRepositories(db, attachmentStorage)

	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg, appLogger, kubernetesClient(appLogger), svcs, repos)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		log:          appLogger,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// kubernetesClient returns the in-cluster client, or nil outside a
// cluster so crons run in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in a cluster, crons run without leader election: %v", err)
		return nil
	}
	k8s, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not build kubernetes client: %v", err)
		return nil
	}
	return k8s
}

func (s *Server) Run() error {
	api.RegisterRoutes(s.router, s.services, s.repositories, s.config.AppConfig.APIKey)

	if err := s.cronManager.Start(os.Getenv("POD_NAME"), os.Getenv("POD_NAMESPACE")); err != nil {
		return err
	}

	go func() {
		s.log.Infof("Starting HTTP server on port %s", s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	}()

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.cronManager.Stop()
	s.services.Shutdown()

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	s.log.Info("Shutdown complete")
	return nil
}
