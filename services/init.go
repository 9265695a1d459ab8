package services

import (
	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/repository"
	"github.com/payradar/payradar/services/analysis"
	"github.com/payradar/payradar/services/auth"
	"github.com/payradar/payradar/services/classifier"
	"github.com/payradar/payradar/services/collector"
	"github.com/payradar/payradar/services/duplicates"
	"github.com/payradar/payradar/services/events"
	"github.com/payradar/payradar/services/gmail"
	"github.com/payradar/payradar/services/imapmail"
	"github.com/payradar/payradar/services/queue"
	syncsvc "github.com/payradar/payradar/services/sync"
)

type Services struct {
	Providers map[string]interfaces.MailProvider

	TokenVault        interfaces.TokenVault
	SyncService       interfaces.SyncService
	ClassifierService interfaces.ClassifierService
	CollectorService  interfaces.CollectorService
	AnalysisService   interfaces.AnalysisService
	AnalysisQueue     interfaces.AnalysisQueue
	DuplicateService  interfaces.DuplicateService
	EventPublisher    interfaces.EventPublisher

	subscriber *events.RabbitMQSubscriber
}

// InitServices wires the full service graph. The event broker is optional:
// without RABBITMQ_URL events are dropped and the cron producer remains
// the only analysis trigger.
func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	providers, err := auth.NewProviderRegistry(
		gmail.NewGmailProvider(cfg.GoogleOAuth, log),
		imapmail.NewIMAPProvider(log),
	)
	if err != nil {
		return nil, err
	}

	var publisher interfaces.EventPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, nil)
		if err != nil {
			return nil, err
		}
	} else {
		publisher = events.NewNoopPublisher()
	}

	vault := auth.NewTokenVault(repos.MailAccountRepository, providers, log)
	classifierService := classifier.NewClassifierService(cfg.ClassifierConfig)
	collectorService := collector.NewCollectorService(cfg.CollectorConfig, repos.AttachmentRepository, log)
	analysisService := analysis.NewAnalysisService(
		repos.MessageRepository,
		repos.AnalysisRecordRepository,
		repos.MailAccountRepository,
		classifierService,
		collectorService,
		publisher,
		log,
	)
	analysisQueue := queue.NewAnalysisQueue(repos.MessageRepository, analysisService, log)
	syncService := syncsvc.NewSyncService(
		repos.MailAccountRepository,
		repos.MessageRepository,
		repos.AttachmentRepository,
		providers,
		vault,
		publisher,
		cfg.SyncConfig,
		log,
	)

	svcs := &Services{
		Providers:         providers,
		TokenVault:        vault,
		SyncService:       syncService,
		ClassifierService: classifierService,
		CollectorService:  collectorService,
		AnalysisService:   analysisService,
		AnalysisQueue:     analysisQueue,
		DuplicateService:  duplicates.NewDuplicateService(repos.AnalysisRecordRepository, log),
		EventPublisher:    publisher,
	}

	if cfg.AppConfig.RabbitMQURL != "" {
		subscriber, err := events.NewRabbitMQSubscriber(cfg.AppConfig.RabbitMQURL, analysisQueue, log, nil)
		if err != nil {
			return nil, err
		}
		subscriber.Start()
		svcs.subscriber = subscriber
	}

	return svcs, nil
}

// Shutdown closes broker connections.
func (s *Services) Shutdown() {
	if s.subscriber != nil {
		_ = s.subscriber.Close()
	}
	if s.EventPublisher != nil {
		_ = s.EventPublisher.Close()
	}
}
