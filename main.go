package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/dto"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/database"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/repository"
	"github.com/payradar/payradar/server"
	"github.com/payradar/payradar/services"
	"github.com/payradar/payradar/services/storage"
)

func main() {
	app := &cli.App{
		Name:  "payradar",
		Usage: "mailbox mirroring and payment analysis service",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, db, err := bootstrap()
					if err != nil {
						return err
					}
					srv, err := server.NewServer(cfg, db)
					if err != nil {
						return err
					}
					return srv.Run()
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					_, db, err := bootstrap()
					if err != nil {
						return err
					}
					if err := repository.MigrateDB(db); err != nil {
						return err
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "sync",
				Usage: "Run a one-shot mailbox sync",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Usage: "sync a single account id"},
				},
				Action: func(c *cli.Context) error {
					cfg, db, err := bootstrap()
					if err != nil {
						return err
					}
					svcs, shutdown, err := initServices(cfg, db)
					if err != nil {
						return err
					}
					defer shutdown()

					ctx := context.Background()
					if accountID := c.String("account"); accountID != "" {
						result, err := svcs.SyncService.SyncAccount(ctx, accountID, dto.SyncOptions{})
						if err != nil {
							return err
						}
						log.Printf("Synced account %s: %d new, %d skipped", accountID, result.Synced, result.Skipped)
						return nil
					}
					return svcs.SyncService.SyncAllAccounts(ctx)
				},
			},
			{
				Name:  "analyze",
				Usage: "Run a one-shot analysis batch over unanalyzed messages",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "restrict to one user id"},
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum messages to analyze"},
				},
				Action: func(c *cli.Context) error {
					cfg, db, err := bootstrap()
					if err != nil {
						return err
					}
					svcs, shutdown, err := initServices(cfg, db)
					if err != nil {
						return err
					}
					defer shutdown()

					result, err := svcs.AnalysisService.AnalyzeBatch(context.Background(), c.String("user"), c.Int("limit"), false)
					if err != nil {
						return err
					}
					log.Printf("Analyzed %d messages: %d payments, %d failed", result.Processed, result.Payments, result.Failed)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func bootstrap() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// initServices builds the service graph for one-shot commands that run
// outside the HTTP server.
func initServices(cfg *config.Config, db *gorm.DB) (*services.Services, func(), error) {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	var attachmentStorage interfaces.StorageService
	if cfg.R2StorageConfig.Configured() {
		attachmentStorage = storage.NewR2StorageService(cfg.R2StorageConfig)
	}

	repos := repository.InitRepositories(db, attachmentStorage)
	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, nil, err
	}
	return svcs, svcs.Shutdown, nil
}
