package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/tracing"
)

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:        &AppConfig{},
		Logger:           &logger.Config{},
		Tracing:          &tracing.JaegerConfig{},
		DatabaseConfig:   &DatabaseConfig{},
		GoogleOAuth:      &GoogleOAuthConfig{},
		ClassifierConfig: &ClassifierConfig{},
		SyncConfig:       &SyncConfig{},
		CollectorConfig:  &CollectorConfig{},
		R2StorageConfig:  &R2StorageConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading payradar config: %v", err)
	}

	return config, nil
}
