package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

// BucketConfig selects the bucket that holds world assets and how its objects are addressed.
type BucketConfig struct {
	Mode          ObjectStorageMode
	Bucket        string
	CDNDomain     string
	PublicBaseURL string
	EmulatorHost  string
	// Credentials is inline service-account JSON or a path to it. Empty uses
	// application default credentials.
	Credentials   string
}

func (cfg BucketConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

// BucketConfigFromEnv reads ASSET_GCS_* settings. STORAGE_EMULATOR_HOST alone selects emulator mode.
func BucketConfigFromEnv() (BucketConfig, error) {
	cfg := BucketConfig{
		Bucket:        envutil.String("ASSET_GCS_BUCKET", ""),
		CDNDomain:     envutil.String("ASSET_CDN_DOMAIN", ""),
		PublicBaseURL: strings.TrimRight(envutil.String("ASSET_PUBLIC_BASE_URL", ""), "/"),
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		Credentials:   envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),
	}
	if cfg.Credentials == "" {
		cfg.Credentials = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	raw := strings.ToLower(envutil.String("ASSET_GCS_MODE", ""))
	switch ObjectStorageMode(raw) {
	case "":
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = ObjectStorageMode(raw)
	default:
		return cfg, fmt.Errorf("invalid ASSET_GCS_MODE=%q (allowed: %q, %q)", raw, ObjectStorageModeGCS, ObjectStorageModeGCSEmulator)
	}
	return cfg, cfg.Validate()
}

func (cfg BucketConfig) Validate() error {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return fmt.Errorf("missing env var ASSET_GCS_BUCKET")
	}
	if cfg.PublicBaseURL != "" && !isAbsoluteURL(cfg.PublicBaseURL) {
		return fmt.Errorf("invalid ASSET_PUBLIC_BASE_URL=%q; expected absolute URL like http://localhost:4443", cfg.PublicBaseURL)
	}
	if !cfg.IsEmulatorMode() {
		return nil
	}
	if cfg.EmulatorHost == "" {
		return fmt.Errorf("ASSET_GCS_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ObjectStorageModeGCSEmulator)
	}
	if !isAbsoluteURL(cfg.EmulatorHost) {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
	}
	return nil
}

func (cfg BucketConfig) clientOptions() []option.ClientOption {
	if cfg.IsEmulatorMode() {
		return []option.ClientOption{option.WithoutAuthentication()}
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	creds := strings.TrimSpace(cfg.Credentials)
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
