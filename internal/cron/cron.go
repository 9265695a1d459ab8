package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/payradar/payradar/config"
	cron_config "github.com/payradar/payradar/internal/cron/config"
	"github.com/payradar/payradar/internal/errs"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/repository"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/services"
	"github.com/pkg/errors"
)

const (
	// GroupPayradar serializes all mailbox jobs: sync, producer and
	// consumer never overlap within one pod.
	GroupPayradar = "payradar"

	LeaseDuration = 15 * time.Second
	RenewDeadline = 10 * time.Second
	RetryPeriod   = 2 * time.Second
)

var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupPayradar: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg    *config.Config
	log    logger.Logger
	cron   *cronv3.Cron
	k8s    kubernetes.Interface
	stopCh chan struct{}
	jobIDs map[string]cronv3.EntryID
	svcs   *services.Services
	repos  *repository.Repositories
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, svcs *services.Services, repos *repository.Repositories) *CronManager {
	return &CronManager{
		cfg:    cfg,
		log:    log,
		k8s:    k8s,
		stopCh: make(chan struct{}),
		jobIDs: make(map[string]cronv3.EntryID),
		svcs:   svcs,
		repos:  repos,
	}
}

// Start initializes the cron manager with leader election. If k8s is nil
// it starts in local mode without leader election.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		cm.StartCron()
		return nil
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      "payradar-cron-leader",
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   LeaseDuration,
			RenewDeadline:   RenewDeadline,
			RetryPeriod:     RetryPeriod,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					cm.StartCron()
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping crons")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		le.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// StartCron initializes and starts the cron scheduler.
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	cm.addJob(c, "heartbeat", cronConfig.CronScheduleHeartbeat, false, func() {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		cm.log.Infof("Cron heartbeat from pod: %s", podName)
	})

	cm.addJob(c, "sync_sweep", cronConfig.CronScheduleSync, true, cm.runSyncSweep)
	cm.addJob(c, "queue_producer", cronConfig.CronScheduleQueueProducer, true, cm.runQueueProducer)
	cm.addJob(c, "queue_consumer", cronConfig.CronScheduleQueueConsumer, false, cm.runQueueConsumer)
	cm.addJob(c, "duplicate_sweep", cronConfig.CronScheduleDuplicateSweep, false, cm.runDuplicateSweep)
	cm.addJob(c, "token_refresh", cronConfig.CronScheduleTokenRefresh, false, cm.runTokenRefresh)
}

func (cm *CronManager) addJob(c *cronv3.Cron, name, schedule string, locked bool, job func()) {
	if schedule == "" {
		return
	}
	id, err := c.AddFunc(schedule, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if locked {
			jobLocks.locks[GroupPayradar].Lock()
			defer jobLocks.locks[GroupPayradar].Unlock()
		}
		job()
	})
	if err != nil {
		cm.log.Fatalf("Could not add %s cron job: %v", name, err)
	}
	cm.jobIDs[name] = id
	cm.log.Infof("Registered %s job with schedule: %s", name, schedule)
}

func (cm *CronManager) runSyncSweep() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runSyncSweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.svcs.SyncService.SyncAllAccounts(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Sync sweep failed: %v", err)
	}
}

func (cm *CronManager) runQueueProducer() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runQueueProducer")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	result, err := cm.svcs.AnalysisQueue.Fill(ctx, "")
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyRunning) {
			return
		}
		tracing.TraceErr(span, err)
		cm.log.Errorf("Queue producer failed: %v", err)
		return
	}
	if result.Enqueued > 0 {
		cm.log.Infof("Queue producer enqueued %d messages (depth %d)", result.Enqueued, result.Depth)
	}
}

func (cm *CronManager) runQueueConsumer() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runQueueConsumer")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	result, err := cm.svcs.AnalysisQueue.Drain(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyRunning) {
			return
		}
		tracing.TraceErr(span, err)
		cm.log.Errorf("Queue consumer failed: %v", err)
		return
	}
	if result.Processed > 0 || result.Failed > 0 {
		cm.log.Infof("Queue consumer processed %d messages (%d payments, %d failed)", result.Processed, result.Payments, result.Failed)
	}
}

func (cm *CronManager) runDuplicateSweep() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runDuplicateSweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	userIDs, err := cm.repos.MailAccountRepository.ListUserIDs(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Duplicate sweep failed to list users: %v", err)
		return
	}

	for _, userID := range userIDs {
		if _, err := cm.svcs.DuplicateService.MarkDuplicates(ctx, userID); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Duplicate sweep failed for user %s: %v", userID, err)
		}
	}
}

func (cm *CronManager) runTokenRefresh() {
	span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager.runTokenRefresh")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	for providerName, provider := range cm.svcs.Providers {
		if !provider.SupportsOAuth() {
			continue
		}
		summary, err := cm.svcs.TokenVault.RefreshAll(ctx, providerName)
		if err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Token refresh sweep failed for provider %s: %v", providerName, err)
			continue
		}
		if summary.Refreshed > 0 || summary.Failed > 0 {
			cm.log.Infof("Token refresh for %s: %d refreshed, %d failed, %d skipped", providerName, summary.Refreshed, summary.Failed, summary.Skipped)
		}
	}
}
