package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "MYBAK"
)

// Load reads configuration from a file, env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved := resolveConfigPath(path)
	if resolved != "" {
		vp.SetConfigFile(resolved)
		if err := vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if envPath := os.Getenv("MYBAK_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"mybak.yaml",
		"mybak.yml",
		"mybak.toml",
		"mybak.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		for _, c := range candidates {
			p := filepath.Join(configDir, "mybak", c)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	return ""
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.operation_timeout", "0s")
	vp.SetDefault("global.dry_run", false)
	vp.SetDefault("backup.mode", ModeData)
	vp.SetDefault("backup.keep_weeks", 2)
	vp.SetDefault("backup.weekday", 6)
	vp.SetDefault("backup.my_cnf", "/etc/my.cnf")
	vp.SetDefault("backup.executor", "xtrabackup")
	vp.SetDefault("backup.target_dir", "/tmp")
	vp.SetDefault("backup.parallel", 4)
	vp.SetDefault("backup.compress_threads", 4)
	vp.SetDefault("backup.checkpoint_marker", DefaultCheckpointMarker)
	vp.SetDefault("database.connection_timeout", "10s")
	vp.SetDefault("mirror.retry_count", 3)
	vp.SetDefault("mirror.retry_backoff", "10s")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.CheckpointMarker == "" {
		cfg.Backup.CheckpointMarker = DefaultCheckpointMarker
	}
	if cfg.Backup.TargetDir == "" {
		cfg.Backup.TargetDir = "/tmp"
	}
	if cfg.Mirror.RetryBackoff == 0 {
		cfg.Mirror.RetryBackoff = 10 * time.Second
	}
	cfg.Backup.Mode = strings.ToLower(strings.TrimSpace(cfg.Backup.Mode))
}

func expandEnv(cfg *Config) {
	cfg.Database.DSN = os.ExpandEnv(cfg.Database.DSN)
	cfg.Mirror.AccessKey = os.ExpandEnv(cfg.Mirror.AccessKey)
	cfg.Mirror.SecretKey = os.ExpandEnv(cfg.Mirror.SecretKey)
	cfg.Mirror.SessionToken = os.ExpandEnv(cfg.Mirror.SessionToken)
	cfg.Mirror.EncryptionKey = os.ExpandEnv(cfg.Mirror.EncryptionKey)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}
