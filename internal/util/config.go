package util

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration, following spec.md §6.5's table.
// Fields are environment-variable driven, with an optional YAML file
// supplying defaults for anything the environment doesn't set — env vars
// always win, the same precedence the teacher's flat getEnv helpers implied
// when the GitHub App's file-based config was layered under them.
type Config struct {
	AdminToken string
	DataDir    string
	HTTPAddr   string
	LogLevel   string
	LogFormat  string // "plain" or "json"

	CORSOrigins []string

	BaseDomain string
	PublicURL  string

	JWTSecret string // also seeds the secret box's key derivation, see internal/crypto

	ContainerSocketPath string
	ProxyAdminURL        string

	TokenExpiryHours int
}

// fileOverrides is the subset of Config an optional YAML file may supply.
type fileOverrides struct {
	DataDir              string   `yaml:"database_path"`
	HTTPAddr             string   `yaml:"http_addr"`
	LogFormat            string   `yaml:"log_format"`
	CORSOrigins          []string `yaml:"allowed_origins"`
	BaseDomain           string   `yaml:"base_domain"`
	PublicURL            string   `yaml:"public_url"`
	JWTSecret            string   `yaml:"jwt_secret"`
	ContainerSocketPath  string   `yaml:"container_socket_path"`
	ProxyAdminURL        string   `yaml:"proxy_admin_url"`
	TokenExpiryHours     int      `yaml:"token_expiry_hours"`
}

// LoadConfig reads configuration from an optional YAML file
// (PLOYER_CONFIG_FILE) and environment variables, with environment
// variables always taking precedence over the file.
func LoadConfig() *Config {
	var overrides fileOverrides
	if path := os.Getenv("PLOYER_CONFIG_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, &overrides)
		}
	}

	corsOrigins := parseOrigins(getEnv("PLOYER_CORS_ORIGINS", ""))
	if len(corsOrigins) == 0 {
		corsOrigins = overrides.CORSOrigins
	}

	return &Config{
		AdminToken:           getEnv("ADMIN_TOKEN", ""),
		DataDir:              getEnvOr("DATA_DIR", overrides.DataDir, "./data"),
		HTTPAddr:             getEnvOr("HTTP_ADDR", overrides.HTTPAddr, ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnvOr("LOG_FORMAT", overrides.LogFormat, "plain"),
		CORSOrigins:          corsOrigins,
		BaseDomain:           getEnvOr("BASE_DOMAIN", overrides.BaseDomain, "ployer.local"),
		PublicURL:            getEnvOr("PUBLIC_URL", overrides.PublicURL, ""),
		JWTSecret:            getEnvOr("JWT_SECRET", overrides.JWTSecret, ""),
		ContainerSocketPath:  getEnvOr("CONTAINER_SOCKET_PATH", overrides.ContainerSocketPath, "/var/run/docker.sock"),
		ProxyAdminURL:        getEnvOr("PROXY_ADMIN_URL", overrides.ProxyAdminURL, "http://127.0.0.1:2019"),
		TokenExpiryHours:     getIntEnvOr("TOKEN_EXPIRY_HOURS", overrides.TokenExpiryHours, 720),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOr(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

func getIntEnvOr(key string, fileValue, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}
	return strings.Split(origins, ",")
}
