package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/moodcycle/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Durations accept
// either strings such as "90s" or integer nanoseconds.
type FileConfig struct {
	HTTPAddr                    string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr                    string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN                 string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                   string         `json:"secret_key" yaml:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`

	ResetWindow  timex.Duration `json:"reset_window" yaml:"reset_window"`
	NotifyWindow timex.Duration `json:"notify_window" yaml:"notify_window"`
	LockStale    timex.Duration `json:"lock_stale" yaml:"lock_stale"`

	RegularTaskPoints     int `json:"regular_task_points" yaml:"regular_task_points"`
	SustainableTaskPoints int `json:"sustainable_task_points" yaml:"sustainable_task_points"`
	MoodNeutralThreshold  int `json:"mood_neutral_threshold" yaml:"mood_neutral_threshold"`
	MoodHappyThreshold    int `json:"mood_happy_threshold" yaml:"mood_happy_threshold"`

	StoreTimeout      timex.Duration `json:"store_timeout" yaml:"store_timeout"`
	NotifyTimeout     timex.Duration `json:"notify_timeout" yaml:"notify_timeout"`
	MaxNotifyAttempts int            `json:"max_notify_attempts" yaml:"max_notify_attempts"`

	SchedulerInterval  timex.Duration `json:"scheduler_interval" yaml:"scheduler_interval"`
	ResetWorkers       int            `json:"reset_workers" yaml:"reset_workers"`
	SchedulerBatchSize int            `json:"scheduler_batch_size" yaml:"scheduler_batch_size"`

	Notifier            string `json:"notifier" yaml:"notifier"`
	SMTPAddr            string `json:"smtp_addr" yaml:"smtp_addr"`
	SMTPUsername        string `json:"smtp_username" yaml:"smtp_username"`
	SMTPPassword        string `json:"smtp_password" yaml:"smtp_password"`
	MailFrom            string `json:"mail_from" yaml:"mail_from"`
	WebhookURL          string `json:"webhook_url" yaml:"webhook_url"`
	CycleSummaryEnabled bool   `json:"cycle_summary_enabled" yaml:"cycle_summary_enabled"`

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`
}

// parseFile overlays the values present in path onto config. Keys missing
// from the file keep their current value. An empty path is a no-op.
func parseFile(config *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := toFile(config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return err
	}

	fromFile(config, fc)
	return nil
}

func toFile(c *Config) *FileConfig {
	return &FileConfig{
		HTTPAddr:                    c.HTTPAddr,
		GRPCAddr:                    c.GRPCAddr,
		DatabaseDSN:                 c.DatabaseDSN,
		SecretKey:                   c.SecretKey,
		AccessTokenValidityDuration: timex.Duration{Duration: c.AccessTokenValidityDuration},
		ResetWindow:                 timex.Duration{Duration: c.ResetWindow},
		NotifyWindow:                timex.Duration{Duration: c.NotifyWindow},
		LockStale:                   timex.Duration{Duration: c.LockStale},
		RegularTaskPoints:           c.RegularTaskPoints,
		SustainableTaskPoints:       c.SustainableTaskPoints,
		MoodNeutralThreshold:        c.MoodNeutralThreshold,
		MoodHappyThreshold:          c.MoodHappyThreshold,
		StoreTimeout:                timex.Duration{Duration: c.StoreTimeout},
		NotifyTimeout:               timex.Duration{Duration: c.NotifyTimeout},
		MaxNotifyAttempts:           c.MaxNotifyAttempts,
		SchedulerInterval:           timex.Duration{Duration: c.SchedulerInterval},
		ResetWorkers:                c.ResetWorkers,
		SchedulerBatchSize:          c.SchedulerBatchSize,
		Notifier:                    c.Notifier,
		SMTPAddr:                    c.SMTPAddr,
		SMTPUsername:                c.SMTPUsername,
		SMTPPassword:                c.SMTPPassword,
		MailFrom:                    c.MailFrom,
		WebhookURL:                  c.WebhookURL,
		CycleSummaryEnabled:         c.CycleSummaryEnabled,
		LogLevel:                    c.LogLevel,
		LogFile:                     c.LogFile,
	}
}

func fromFile(c *Config, fc *FileConfig) {
	c.HTTPAddr = fc.HTTPAddr
	c.GRPCAddr = fc.GRPCAddr
	c.DatabaseDSN = fc.DatabaseDSN
	c.SecretKey = fc.SecretKey
	c.AccessTokenValidityDuration = fc.AccessTokenValidityDuration.Duration
	c.ResetWindow = fc.ResetWindow.Duration
	c.NotifyWindow = fc.NotifyWindow.Duration
	c.LockStale = fc.LockStale.Duration
	c.RegularTaskPoints = fc.RegularTaskPoints
	c.SustainableTaskPoints = fc.SustainableTaskPoints
	c.MoodNeutralThreshold = fc.MoodNeutralThreshold
	c.MoodHappyThreshold = fc.MoodHappyThreshold
	c.StoreTimeout = fc.StoreTimeout.Duration
	c.NotifyTimeout = fc.NotifyTimeout.Duration
	c.MaxNotifyAttempts = fc.MaxNotifyAttempts
	c.SchedulerInterval = fc.SchedulerInterval.Duration
	c.ResetWorkers = fc.ResetWorkers
	c.SchedulerBatchSize = fc.SchedulerBatchSize
	c.Notifier = fc.Notifier
	c.SMTPAddr = fc.SMTPAddr
	c.SMTPUsername = fc.SMTPUsername
	c.SMTPPassword = fc.SMTPPassword
	c.MailFrom = fc.MailFrom
	c.WebhookURL = fc.WebhookURL
	c.CycleSummaryEnabled = fc.CycleSummaryEnabled
	c.LogLevel = fc.LogLevel
	c.LogFile = fc.LogFile
}
