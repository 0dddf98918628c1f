package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the materializer service.
type Config struct {
	LogLevel     string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string

	// Timezone is the IANA zone used to derive "today" when no explicit
	// date is given, and the zone cron fires in.
	Timezone string

	DefinitionConcurrency int
	AssigneeConcurrency   int
	UnitTimeout           time.Duration

	CronSchedule string
	RunLockTTL   time.Duration

	NotifyRateLimit  int
	NotifyRateWindow time.Duration

	HTTPAddr     string
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:              v.GetString("log_level"),
		PostgresDSN:           v.GetString("postgres_dsn"),
		RedisAddr:             v.GetString("redis_addr"),
		KafkaBrokers:          v.GetString("kafka_brokers"),
		Timezone:              v.GetString("timezone"),
		DefinitionConcurrency: v.GetInt("definition_concurrency"),
		AssigneeConcurrency:   v.GetInt("assignee_concurrency"),
		UnitTimeout:           v.GetDuration("unit_timeout"),
		CronSchedule:          v.GetString("cron_schedule"),
		RunLockTTL:            v.GetDuration("run_lock_ttl"),
		NotifyRateLimit:       v.GetInt("notify_rate_limit"),
		NotifyRateWindow:      v.GetDuration("notify_rate_window"),
		HTTPAddr:              v.GetString("http_addr"),
		MetricsAddr:           v.GetString("metrics_addr"),
		OTelEndpoint:          v.GetString("otel_endpoint"),
	}
}
