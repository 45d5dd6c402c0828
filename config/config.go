package config

import (
	"os"
)

// Config carries the engine's environment-backed settings.
type Config struct {
	Port        string
	Environment string

	// External services
	AgentServerURL  string
	TokenServerURL  string
	BackendAPIURL   string
	BackendAPIToken string
	GatewayWSURL    string

	MongoURI      string
	MongoDatabase string

	JWTSecret string
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		AgentServerURL:  getEnv("AGENT_SERVER_URL", "http://localhost:8083"),
		TokenServerURL:  getEnv("TOKEN_SERVER_URL", "http://localhost:8084"),
		BackendAPIURL:   getEnv("BACKEND_API_URL", "http://localhost:8081"),
		BackendAPIToken: getEnv("BACKEND_API_TOKEN", ""),
		GatewayWSURL:    getEnv("GATEWAY_WS_URL", ""),

		MongoURI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "memory_postcard"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
