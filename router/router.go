package router

import (
	"log"
	"net/http"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	"github.com/Paulo-german/kronos-crm-sub001/config"
	"github.com/Paulo-german/kronos-crm-sub001/controllers"
	"github.com/Paulo-german/kronos-crm-sub001/ingest"
	"github.com/Paulo-german/kronos-crm-sub001/middleware"
	"github.com/Paulo-german/kronos-crm-sub001/queue"

	"github.com/gin-gonic/gin"
)

// Initialize wires all routes and middlewares.
func Initialize(r *gin.Engine, cfg config.Configuration, store cache.Store, q queue.Enqueuer, sender ingest.TextSender) {
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")

	// Gateway webhook: one POST per message delivery, authenticated by the
	// shared apikey query parameter.
	api.POST("/webhook", Logger(), controllers.WebhookReceive(cfg.WebhookSecret, store, q, sender))

	log.Printf("Routes initialized")
}
