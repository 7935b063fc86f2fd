package infra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the deployment service's full configuration, assembled once
// at startup from environment variables.
type Config struct {
	HTTP    HTTPConfig
	Redis   RedisConfig
	Docker  DockerConfig
	Traefik TraefikConfig
	Loki    LokiConfig

	DeployTimeoutSeconds int
	DebugMode            bool
	LogLevel             string

	Registry         string
	RegistryPassword string
}

type HTTPConfig struct {
	Addr string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	// RQDB is the database index used for the job queue, kept separate
	// from db 0 where application state lives.
	RQDB int
	Addr string
}

type DockerConfig struct {
	Host string
}

type TraefikConfig struct {
	BaseDomain string
	Network    string
}

type LokiConfig struct {
	BaseURL string
}

// LoadConfig loads configuration from the environment, failing fast if a
// required value is missing.
func LoadConfig() (*Config, error) {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("http.addr", "HTTP_ADDR")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("rq.db", "RQ_DB")
	viper.BindEnv("docker.host", "DOCKER_HOST")
	viper.BindEnv("traefik.base_domain", "BASE_DOMAIN")
	viper.BindEnv("traefik.network", "TRAEFIK_NETWORK")
	viper.BindEnv("loki.url", "LOKI_URL")
	viper.BindEnv("deploy.timeout", "DEPLOY_TIMEOUT")
	viper.BindEnv("debug_mode", "DEBUG_MODE")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("registry", "REGISTRY")
	viper.BindEnv("registry_password", "REGISTRY_PASSWORD")

	setDefaults()

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr: viper.GetString("http.addr"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetInt("redis.port"),
			Password: viper.GetString("redis.password"),
			RQDB:     viper.GetInt("rq.db"),
		},
		Docker: DockerConfig{
			Host: viper.GetString("docker.host"),
		},
		Traefik: TraefikConfig{
			BaseDomain: viper.GetString("traefik.base_domain"),
			Network:    viper.GetString("traefik.network"),
		},
		Loki: LokiConfig{
			BaseURL: viper.GetString("loki.url"),
		},
		DeployTimeoutSeconds: viper.GetInt("deploy.timeout"),
		DebugMode:            viper.GetBool("debug_mode"),
		LogLevel:             viper.GetString("log.level"),
		Registry:             viper.GetString("registry"),
		RegistryPassword:     viper.GetString("registry_password"),
	}
	cfg.Redis.Addr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("redis.host", "redis-db")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("rq.db", 1)
	viper.SetDefault("docker.host", "unix:///var/run/docker.sock")
	viper.SetDefault("traefik.base_domain", "localhost")
	viper.SetDefault("traefik.network", "traefik_default")
	viper.SetDefault("loki.url", "http://loki:3100")
	viper.SetDefault("deploy.timeout", 60)
	viper.SetDefault("debug_mode", false)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("registry", "")
	viper.SetDefault("registry_password", "")
}

func validateConfig(cfg *Config) error {
	if cfg.Traefik.BaseDomain == "" {
		return errors.New("BASE_DOMAIN must not be empty")
	}
	if cfg.Redis.Host == "" {
		return errors.New("REDIS_HOST must not be empty")
	}
	if cfg.DeployTimeoutSeconds <= 0 {
		return errors.New("DEPLOY_TIMEOUT must be positive")
	}
	return nil
}
