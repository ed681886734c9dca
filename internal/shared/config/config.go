package config

import (
	"log"
	"os"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	DatabaseURL string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	SQSQueueURL string

	ClamdAddr   string
	ScanTimeout time.Duration

	ExtractionTimeout    time.Duration
	ExtractionEnabled    bool
	AutoClassifyEnabled  bool
	DownloadURLTTL       time.Duration
	QuarantineOnInfected bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:                 getEnv("PORT", "8080"),
		CORSAllowOrigin:      splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:                  env,
		DatabaseURL:          dbURL,
		ObjectStoreType:      normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:        getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:            getEnv("AWS_REGION", ""),
		S3Bucket:             getEnv("S3_BUCKET", ""),
		S3Prefix:             getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:          getEnv("SSE_KMS_KEY_ID", ""),
		SQSQueueURL:          getEnv("CD_SQS_QUEUE_URL", ""),
		ClamdAddr:            getEnv("CLAMD_ADDR", ""),
		ScanTimeout:          getEnvDuration("SCAN_TIMEOUT", 60*time.Second),
		ExtractionTimeout:    getEnvDuration("EXTRACTION_TIMEOUT", 120*time.Second),
		ExtractionEnabled:    getEnvBool("EXTRACTION_ENABLED", true),
		AutoClassifyEnabled:  getEnvBool("AUTO_CLASSIFY_ENABLED", true),
		DownloadURLTTL:       getEnvDuration("DOWNLOAD_URL_TTL", 15*time.Minute),
		QuarantineOnInfected: getEnvBool("QUARANTINE_ON_INFECTED", true),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	log.Printf("config %s invalid bool %q, using default", key, raw)
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("config %s invalid duration %q, using default", key, raw)
		return fallback
	}
	return d
}

func normalizeEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	default:
		return "dev"
	}
}

func normalizeStoreType(storeType string) string {
	switch strings.ToLower(strings.TrimSpace(storeType)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
