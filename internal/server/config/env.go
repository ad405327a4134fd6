package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dmitrijs2005/moodcycle/internal/common"
)

const defaultEnvFile = ".env"

// parseEnv loads envFile (".env" when empty) into the process environment
// without overriding variables that are already set, then overlays every
// recognised variable onto config.
func parseEnv(config *Config, envFile string) error {
	if err := loadDotEnv(envFile); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	v := viper.New()
	v.AutomaticEnv()

	envString(v, "HTTP_ADDR", &config.HTTPAddr)
	envString(v, "GRPC_ADDR", &config.GRPCAddr)
	envString(v, "DATABASE_DSN", &config.DatabaseDSN)
	envString(v, "SECRET_KEY", &config.SecretKey)
	envString(v, "NOTIFIER", &config.Notifier)
	envString(v, "SMTP_ADDR", &config.SMTPAddr)
	envString(v, "SMTP_USERNAME", &config.SMTPUsername)
	envString(v, "SMTP_PASSWORD", &config.SMTPPassword)
	envString(v, "MAIL_FROM", &config.MailFrom)
	envString(v, "WEBHOOK_URL", &config.WebhookURL)
	envString(v, "LOG_LEVEL", &config.LogLevel)
	envString(v, "LOG_FILE", &config.LogFile)

	return errors.Join(
		envDuration(v, "RESET_WINDOW_HOURS", time.Hour, &config.ResetWindow),
		envDuration(v, "NOTIFY_WINDOW_HOURS", time.Hour, &config.NotifyWindow),
		envDuration(v, "LOCK_STALE_SECONDS", time.Second, &config.LockStale),
		envDuration(v, "STORE_TIMEOUT_SECONDS", time.Second, &config.StoreTimeout),
		envDuration(v, "NOTIFY_TIMEOUT_SECONDS", time.Second, &config.NotifyTimeout),
		envDuration(v, "SCHEDULER_INTERVAL_SECONDS", time.Second, &config.SchedulerInterval),
		envDuration(v, "ACCESS_TOKEN_VALIDITY_MINUTES", time.Minute, &config.AccessTokenValidityDuration),
		envInt(v, "REGULAR_TASK_POINTS", &config.RegularTaskPoints),
		envInt(v, "SUSTAINABLE_TASK_POINTS", &config.SustainableTaskPoints),
		envInt(v, "MOOD_NEUTRAL_THRESHOLD", &config.MoodNeutralThreshold),
		envInt(v, "MOOD_HAPPY_THRESHOLD", &config.MoodHappyThreshold),
		envInt(v, "MAX_NOTIFY_ATTEMPTS", &config.MaxNotifyAttempts),
		envInt(v, "RESET_WORKERS", &config.ResetWorkers),
		envInt(v, "SCHEDULER_BATCH_SIZE", &config.SchedulerBatchSize),
		envBool(v, "CYCLE_SUMMARY_ENABLED", &config.CycleSummaryEnabled),
	)
}

func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func envString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func envInt(v *viper.Viper, key string, dst *int) error {
	if !v.IsSet(key) {
		return nil
	}
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not an integer", common.ErrInvalidConfig, key, raw)
	}
	*dst = n
	return nil
}

// envDuration reads an integer count of unit.
func envDuration(v *viper.Viper, key string, unit time.Duration, dst *time.Duration) error {
	var n int
	if err := envInt(v, key, &n); err != nil || !v.IsSet(key) {
		return err
	}
	*dst = time.Duration(n) * unit
	return nil
}

func envBool(v *viper.Viper, key string, dst *bool) error {
	if !v.IsSet(key) {
		return nil
	}
	raw := strings.TrimSpace(v.GetString(key))
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%w: %s=%q is not a boolean", common.ErrInvalidConfig, key, raw)
	}
	*dst = b
	return nil
}
