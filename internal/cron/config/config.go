package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox sync sweep, every 5 minutes
	CronScheduleSync string `env:"CRON_SCHEDULE_SYNC" envDefault:"0 */5 * * * *"`
	// Analysis queue producer, every 2 minutes
	CronScheduleQueueProducer string `env:"CRON_SCHEDULE_QUEUE_PRODUCER" envDefault:"0 */2 * * * *"`
	// Analysis queue consumer, every minute
	CronScheduleQueueConsumer string `env:"CRON_SCHEDULE_QUEUE_CONSUMER" envDefault:"30 * * * * *"`
	// Duplicate detection sweep, daily at 02:00
	CronScheduleDuplicateSweep string `env:"CRON_SCHEDULE_DUPLICATE_SWEEP" envDefault:"0 0 2 * * *"`
	// Bulk token refresh, every 30 minutes
	CronScheduleTokenRefresh string `env:"CRON_SCHEDULE_TOKEN_REFRESH" envDefault:"0 */30 * * * *"`
}
