package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Mirror        MirrorConfig        `mapstructure:"mirror"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"` // json or console
	LockFile          string        `mapstructure:"lock_file"`  // defaults to <dir>/.mybak.lock
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"` // 0 = no limit
	DryRun            bool          `mapstructure:"dry_run"`
	AllowMissingTools bool          `mapstructure:"allow_missing_tools"`
}

type BackupConfig struct {
	Mode             string `mapstructure:"mode"` // data, logs, both
	Dir              string `mapstructure:"dir"`
	KeepWeeks        int    `mapstructure:"keep_weeks"`
	Weekday          int    `mapstructure:"weekday"` // 1=Monday .. 7=Sunday
	MyCnf            string `mapstructure:"my_cnf"`
	Executor         string `mapstructure:"executor"` // xtrabackup, mariabackup or a path
	TargetDir        string `mapstructure:"target_dir"`
	Parallel         int    `mapstructure:"parallel"`
	CompressThreads  int    `mapstructure:"compress_threads"`
	CompressLevel    int    `mapstructure:"compress_level"`
	CheckpointMarker string `mapstructure:"checkpoint_marker"`
	LogBin           string `mapstructure:"log_bin"` // log_bin_basename
}

type DatabaseConfig struct {
	// DSN is only used to look up log_bin_basename when log_bin is unset.
	DSN               string        `mapstructure:"dsn"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

type MirrorConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	AccessKey       string        `mapstructure:"access_key"`
	SecretKey       string        `mapstructure:"secret_key"`
	SessionToken    string        `mapstructure:"session_token"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	TLSInsecureSkip bool          `mapstructure:"tls_insecure_skip"`
	EncryptionKey   string        `mapstructure:"encryption_key"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
