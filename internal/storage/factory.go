package storage

import (
	"fmt"

	"github.com/rowjay/mybak/internal/config"
	"github.com/rowjay/mybak/internal/cryptoutil"
)

// NewMirror builds the configured off-site mirror, or nil when mirroring is
// disabled.
func NewMirror(cfg config.MirrorConfig) (Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("mirror endpoint and bucket are required")
	}
	s3, err := NewS3(cfg.Endpoint, cfg.Region, cfg.Bucket, cfg.AccessKey, cfg.SecretKey, cfg.SessionToken, cfg.UseSSL, cfg.ForcePathStyle, cfg.TLSInsecureSkip)
	if err != nil {
		return nil, err
	}
	s3.Prefix = cfg.Prefix
	if cfg.EncryptionKey != "" {
		key, err := cryptoutil.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("mirror encryption key: %w", err)
		}
		s3.Key = key
	}
	return s3, nil
}
