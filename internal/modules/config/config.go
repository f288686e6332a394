package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

// Account is one set of exchange credentials.
type Account struct {
	Name         string `yaml:"name"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB string `yaml:"db_dsn"`

	Deribit struct {
		RestURL string `yaml:"rest_url"`
		WsURL   string `yaml:"ws_url"`
	} `yaml:"deribit"`

	Accounts []Account `yaml:"accounts"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Порог spread ratio: >= limit считаем рынок широким и не степаем.
	SpreadLimit float64 `yaml:"spread_limit"`
	// Начальный отступ лимитки от пассивной стороны, доля спреда.
	EntryOffset float64 `yaml:"entry_offset"`

	// Степпер: пауза между шагами и число шагов до кросса.
	StepTimeout time.Duration
	MaxStep     int

	// Watcher
	WatchInterval time.Duration
	WatchParallel int
	OrderTTL      time.Duration

	DefaultMinTenorDays int
}

func NewConfig() (*Config, error) {

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		SpreadLimit: floatFromEnv("SPREAD_LIMIT", 0.15),
		EntryOffset: floatFromEnv("ENTRY_OFFSET", 0.2),

		StepTimeout: durationFromEnv("STEP_TIMEOUT", "3s"),
		MaxStep:     intFromEnv("MAX_STEP", 3),

		WatchInterval: durationFromEnv("WATCH_INTERVAL", "60s"),
		WatchParallel: intFromEnv("WATCH_PARALLEL", 4),
		OrderTTL:      durationFromEnv("ORDER_TTL", "24h"),

		DefaultMinTenorDays: intFromEnv("MIN_TENOR_DAYS", 7),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if config.Deribit.RestURL == "" {
		config.Deribit.RestURL = getenvDefault("DERIBIT_REST_URL", "https://www.deribit.com")
	}
	if config.Deribit.WsURL == "" {
		config.Deribit.WsURL = getenvDefault("DERIBIT_WS_URL", "wss://www.deribit.com/ws/api/v2")
	}

	return &config, nil
}

// AccountByName finds credentials for one configured account.
func (c *Config) AccountByName(name string) (Account, error) {
	for _, a := range c.Accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("account %q is not configured", name)
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
