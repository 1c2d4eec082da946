package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	WhatsApp WhatsAppConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// UpstreamConfig points at the remote events/bookings/payments API.
type UpstreamConfig struct {
	BaseURL string
	Retries int
	Timeout time.Duration
}

type WhatsAppConfig struct {
	AdminPhone string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := os.Getenv("SERVER_HOST")
	if serverHost == "" {
		serverHost = "localhost"
	}

	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080"
	}

	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid SERVER_PORT: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: serverHost,
		Port: serverPort,
	}

	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		return nil, fmt.Errorf("%s: missing API_BASE", op)
	}

	retriesStr := os.Getenv("API_RETRIES")
	if retriesStr == "" {
		retriesStr = "3"
	}

	retries, err := strconv.Atoi(retriesStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid API_RETRIES: %w", op, err)
	}

	timeoutMsStr := os.Getenv("API_TIMEOUT_MS")
	if timeoutMsStr == "" {
		timeoutMsStr = "15000"
	}

	timeoutMs, err := strconv.Atoi(timeoutMsStr)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid API_TIMEOUT_MS: %w", op, err)
	}

	upstreamCfg := UpstreamConfig{
		BaseURL: apiBase,
		Retries: retries,
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	}

	adminPhone := os.Getenv("ADMIN_PHONE")
	if adminPhone == "" {
		return nil, fmt.Errorf("%s: missing ADMIN_PHONE", op)
	}

	whatsappCfg := WhatsAppConfig{
		AdminPhone: adminPhone,
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		redisDB, err = strconv.Atoi(dbStr)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid REDIS_DB: %w", op, err)
		}
	}

	redisCfg := RedisConfig{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	return &Config{
		Server:   serverCfg,
		Upstream: upstreamCfg,
		WhatsApp: whatsappCfg,
		Redis:    redisCfg,
	}, nil
}
