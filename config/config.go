// Package config, sync engine'in tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
//
// Config struct'ı tüm ayarları tek bir yerde toplar, böylece her yerde ayrı
// ayrı os.Getenv() çağırmak yerine tek bir Config nesnesi taşırız.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	API        APIConfig
	Push       PushConfig
	Presence   PresenceConfig
	Bridge     BridgeConfig
	Workspaces []string
	Log        LogConfig
}

// APIConfig, mqvi REST API ayarları.
type APIConfig struct {
	BaseURL     string  // ör: https://mqvi.example.com/api
	AccessToken string  // Sunucunun verdiği JWT: GİZLİ TUTULMALI
	RateLimit   float64 // Saniye başına izin verilen istek (client-side pacing)
	RateBurst   int
	Timeout     time.Duration
}

// PushConfig, WebSocket push bağlantısı ayarları.
type PushConfig struct {
	URL               string // ör: wss://mqvi.example.com/ws
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

// PresenceConfig, typing/presence store ayarları.
type PresenceConfig struct {
	TypingTTL      time.Duration
	SweepInterval  time.Duration
	TypingThrottle time.Duration // Giden typing frame'leri arası minimum süre (kanal başına)
}

// BridgeConfig, view katmanına açılan lokal HTTP bridge ayarları.
type BridgeConfig struct {
	Enabled        bool
	Host           string
	Port           int
	Token          string // Boşsa bridge auth kapalıdır
	AllowedOrigins []string
}

// LogConfig, logger ayarları.
type LogConfig struct {
	Level string // "debug" ise development logger
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler (development kolaylığı için).
func Load() (*Config, error) {
	// .env dosyası yoksa hata vermez, sessizce devam eder.
	_ = godotenv.Load()

	rateLimit, err := strconv.ParseFloat(getEnv("MQVI_API_RATE", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MQVI_API_RATE: %w", err)
	}

	rateBurst, err := strconv.Atoi(getEnv("MQVI_API_BURST", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid MQVI_API_BURST: %w", err)
	}

	bridgePort, err := strconv.Atoi(getEnv("MQVI_BRIDGE_PORT", "9190"))
	if err != nil {
		return nil, fmt.Errorf("invalid MQVI_BRIDGE_PORT: %w", err)
	}

	bridgeEnabled, err := strconv.ParseBool(getEnv("MQVI_BRIDGE_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MQVI_BRIDGE_ENABLED: %w", err)
	}

	durations := map[string]*time.Duration{}
	cfg := &Config{
		API: APIConfig{
			BaseURL:     strings.TrimRight(getEnv("MQVI_API_URL", "http://localhost:9090/api"), "/"),
			AccessToken: getEnv("MQVI_ACCESS_TOKEN", ""),
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
		},
		Push: PushConfig{
			URL: getEnv("MQVI_PUSH_URL", "ws://localhost:9090/ws"),
		},
		Bridge: BridgeConfig{
			Enabled:        bridgeEnabled,
			Host:           getEnv("MQVI_BRIDGE_HOST", "127.0.0.1"),
			Port:           bridgePort,
			Token:          getEnv("MQVI_BRIDGE_TOKEN", ""),
			AllowedOrigins: splitList(getEnv("MQVI_BRIDGE_ORIGINS", "http://localhost:3030")),
		},
		Workspaces: splitList(getEnv("MQVI_WORKSPACES", "")),
		Log: LogConfig{
			Level: getEnv("MQVI_LOG_LEVEL", "info"),
		},
	}

	durations["MQVI_API_TIMEOUT"] = &cfg.API.Timeout
	durations["MQVI_PUSH_HEARTBEAT"] = &cfg.Push.HeartbeatInterval
	durations["MQVI_PUSH_READ_TIMEOUT"] = &cfg.Push.ReadTimeout
	durations["MQVI_PUSH_BACKOFF_MIN"] = &cfg.Push.BackoffMin
	durations["MQVI_PUSH_BACKOFF_MAX"] = &cfg.Push.BackoffMax
	durations["MQVI_TYPING_TTL"] = &cfg.Presence.TypingTTL
	durations["MQVI_PRESENCE_SWEEP"] = &cfg.Presence.SweepInterval
	durations["MQVI_TYPING_THROTTLE"] = &cfg.Presence.TypingThrottle

	for key, dst := range durations {
		d, err := time.ParseDuration(getEnv(key, durationDefaults[key]))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", key)
		}
		*dst = d
	}

	if cfg.Push.BackoffMin > cfg.Push.BackoffMax {
		return nil, fmt.Errorf("MQVI_PUSH_BACKOFF_MIN must not exceed MQVI_PUSH_BACKOFF_MAX")
	}

	if cfg.API.AccessToken == "" {
		return nil, fmt.Errorf("MQVI_ACCESS_TOKEN environment variable is required")
	}

	return cfg, nil
}

// durationDefaults, süre tipindeki ayarların varsayılanları.
var durationDefaults = map[string]string{
	"MQVI_API_TIMEOUT":       "15s",
	"MQVI_PUSH_HEARTBEAT":    "30s",
	"MQVI_PUSH_READ_TIMEOUT": "90s",
	"MQVI_PUSH_BACKOFF_MIN":  "500ms",
	"MQVI_PUSH_BACKOFF_MAX":  "30s",
	"MQVI_TYPING_TTL":        "5s",
	"MQVI_PRESENCE_SWEEP":    "1s",
	"MQVI_TYPING_THROTTLE":   "3s",
}

// Addr, bridge HTTP server'ın dinleyeceği adresi döner (ör: "127.0.0.1:9190").
func (c *BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// splitList, virgülle ayrılmış listeyi parçalar; boş elemanları atlar.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
