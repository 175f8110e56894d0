package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
)

type Configuration struct {
	ApiPort string `json:"api_port"`

	Database string `json:"database"` // "sqlite3" or "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`

	// Shared secret the gateway sends back as the apikey query parameter.
	WebhookSecret string `json:"webhook_secret"`

	Cache struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"cache"`

	Gateway struct {
		BaseURL string `json:"base_url"`
		ApiKey  string `json:"api_key"`
	} `json:"gateway"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatal(err)
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		log.Fatal(err)
	}

	// defaults
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}

	// secrets prefer the environment over the config file
	if v := getenv("WEBHOOK_SECRET"); v != "" {
		c.WebhookSecret = v
	}
	if v := getenv("CACHE_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := getenv("CACHE_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := getenv("GATEWAY_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := getenv("GATEWAY_API_KEY"); v != "" {
		c.Gateway.ApiKey = v
	}

	return c
}

func getenv(k string) string {
	return strings.TrimSpace(os.Getenv(k))
}
