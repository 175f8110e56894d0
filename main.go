package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	"github.com/Paulo-german/kronos-crm-sub001/config"
	dbpkg "github.com/Paulo-german/kronos-crm-sub001/db"
	"github.com/Paulo-german/kronos-crm-sub001/queue"
	"github.com/Paulo-german/kronos-crm-sub001/router"
	"github.com/Paulo-german/kronos-crm-sub001/tools"
	"github.com/Paulo-german/kronos-crm-sub001/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// =====================
// Expected ENV
// =====================
//
// - CONFIG_PATH          (default: config.json)
// - AUTOMIGRATE          (1 to run schema automigrate on boot)
// - WEBHOOK_SECRET       (overrides webhook_secret from the config file)
// - CACHE_ADDR / CACHE_PASSWORD
// - GATEWAY_BASE_URL / GATEWAY_API_KEY
// - OPENAI_API_KEY / OPENAI_MODEL / OPENAI_SYSTEM_PROMPT
//
// =====================

func main() {
	_ = godotenv.Load()

	configPath := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if configPath == "" {
		configPath = "config.json"
	}
	cfg := config.Get(configPath)

	dbpkg.SetConfigurations(cfg)
	db, err := dbpkg.Connect()
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer db.Close()

	store := cache.NewRedis(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		// The pipeline degrades without the cache, but starting blind is
		// almost always a config mistake worth failing loudly on.
		log.Fatalf("cache ping error: %v", err)
	}

	gateway := tools.NewGatewayClient(cfg.Gateway.BaseURL, cfg.Gateway.ApiKey)

	aiClient, err := tools.NewAIClient()
	if err != nil {
		log.Fatalf("openai client error: %v", err)
	}

	workers.NewResponder(db, store, aiClient, gateway).Start()

	q := queue.NewDB(db)

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(db))
	router.Initialize(r, cfg, store, q, gateway)

	log.Printf("Kronos ingestion listening on :%s", cfg.ApiPort)
	if err := r.Run(":" + cfg.ApiPort); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
