package app

import (
	"strings"
	"time"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
)

type Config struct {
	Port           string
	LogMode        string
	ServiceName    string
	Environment    string
	Version        string
	JWTSecretKey   string
	AllowedOrigins []string

	AssetStorage   string
	LocalAssetDir  string
	LocalAssetBase string
	CoverFontPath  string

	GenerationRatePerMinute int
	StaleRunAfter           time.Duration
	ShutdownGrace           time.Duration
}

func LoadConfig() Config {
	return Config{
		Port:           envutil.String("PORT", "8080"),
		LogMode:        envutil.String("LOG_MODE", "development"),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "learnworld-api"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AllowedOrigins: envutil.List("CORS_ALLOWED_ORIGINS", nil),

		AssetStorage:   strings.ToLower(envutil.String("ASSET_STORAGE", "none")),
		LocalAssetDir:  envutil.String("ASSET_LOCAL_DIR", "./data/assets"),
		LocalAssetBase: envutil.String("ASSET_LOCAL_BASE_URL", "http://localhost:8080/assets"),
		CoverFontPath:  envutil.String("COVER_FONT_PATH", ""),

		GenerationRatePerMinute: envutil.Int("GENERATION_RATE_PER_MINUTE", 5),
		StaleRunAfter:           time.Duration(envutil.Int("STALE_RUN_MINUTES", 30)) * time.Minute,
		ShutdownGrace:           time.Duration(envutil.Int("SHUTDOWN_GRACE_SECONDS", 30)) * time.Second,
	}
}

// SweepInterval runs the stale sweep twice per threshold.
func (c Config) SweepInterval() time.Duration {
	if c.StaleRunAfter <= 0 {
		return 15 * time.Minute
	}
	return c.StaleRunAfter / 2
}
