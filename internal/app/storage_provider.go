package app

import (
	"context"
	"fmt"

	"github.com/yungbote/learnworld-backend/internal/platform/assets"
	"github.com/yungbote/learnworld-backend/internal/platform/gcp"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/platform/s3store"
)

var (
	newGCSStore = gcp.NewBucketStore
	newS3Store  = s3store.New
)

const (
	AssetStorageGCS   = "gcs"
	AssetStorageS3    = "s3"
	AssetStorageLocal = "local"
	AssetStorageNone  = "none"
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode   StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorInvalidConfig StorageProviderBootstrapErrorCode = "invalid_config"
	StorageProviderBootstrapErrorConnectFailed StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code  StorageProviderBootstrapErrorCode
	Mode  string
	Cause error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return "asset storage bootstrap failed"
	}
	return fmt.Sprintf("asset storage bootstrap failed (code=%s mode=%q): %v", e.Code, e.Mode, e.Cause)
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveAssetStore selects where generated illustrations and covers are stored.
func resolveAssetStore(ctx context.Context, log *logger.Logger, cfg Config) (assets.Store, error) {
	mode := cfg.AssetStorage
	fail := func(code StorageProviderBootstrapErrorCode, cause error) (assets.Store, error) {
		err := &StorageProviderBootstrapError{Code: code, Mode: mode, Cause: cause}
		log.Error("Asset storage bootstrap failed", "mode", mode, "error_code", code, "error", cause)
		return nil, err
	}

	log.Info("Selecting asset storage provider", "mode", mode)
	switch mode {
	case "", AssetStorageNone:
		return assets.NewNoneStore(), nil
	case AssetStorageLocal:
		store, err := assets.NewLocalStore(log, cfg.LocalAssetDir, cfg.LocalAssetBase)
		if err != nil {
			return fail(StorageProviderBootstrapErrorInvalidConfig, err)
		}
		return store, nil
	case AssetStorageGCS:
		bucketCfg, err := gcp.BucketConfigFromEnv()
		if err != nil {
			return fail(StorageProviderBootstrapErrorInvalidConfig, err)
		}
		store, err := newGCSStore(ctx, log, bucketCfg)
		if err != nil {
			return fail(StorageProviderBootstrapErrorConnectFailed, err)
		}
		return store, nil
	case AssetStorageS3:
		s3Cfg := s3store.ConfigFromEnv()
		if err := s3Cfg.Validate(); err != nil {
			return fail(StorageProviderBootstrapErrorInvalidConfig, err)
		}
		store, err := newS3Store(ctx, log, s3Cfg)
		if err != nil {
			return fail(StorageProviderBootstrapErrorConnectFailed, err)
		}
		return store, nil
	default:
		return fail(StorageProviderBootstrapErrorInvalidMode, fmt.Errorf("unsupported ASSET_STORAGE %q (allowed: gcs, s3, local, none)", mode))
	}
}
