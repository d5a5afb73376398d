package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	SessionCookieName  string
	SessionTTL         time.Duration
	OperatorToken      string
	WorkflowEngineURL  string
	WorkflowTimeout    time.Duration
	DeployPollInterval time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4000"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://shiplane:shiplane@db:5432/shiplane?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "../db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		SessionCookieName:  GetString("SESSION_COOKIE_NAME", "shiplane_session"),
		SessionTTL:         time.Duration(GetInt("SESSION_TTL_HOURS", 24)) * time.Hour,
		OperatorToken:      GetString("OPERATOR_TOKEN", ""),
		WorkflowEngineURL:  GetString("WORKFLOW_ENGINE_URL", "http://workflows:8288"),
		WorkflowTimeout:    time.Duration(GetInt("WORKFLOW_TIMEOUT_SECONDS", 30)) * time.Second,
		DeployPollInterval: time.Duration(GetInt("DEPLOY_POLL_SECONDS", 5)) * time.Second,
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
