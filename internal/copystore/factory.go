package copystore

import (
	"context"
	"fmt"

	"gbtim/internal/config"
	"gbtim/internal/gbtim"
)

// NewStoreFromConfig creates a CopyStore implementation based on the host
// config type.
func NewStoreFromConfig(ctx context.Context, cfg config.HostConfig) (gbtim.CopyStore, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("copy store requires a name")
	}
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.Name, cfg.FSRoot)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Host:            cfg.Name,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown copy store type: %s", cfg.Type)
	}
}
