package controllers

import (
	"crypto/subtle"
	"log"
	"net/http"

	"github.com/Paulo-german/kronos-crm-sub001/cache"
	dbpkg "github.com/Paulo-german/kronos-crm-sub001/db"
	"github.com/Paulo-german/kronos-crm-sub001/ingest"
	"github.com/Paulo-german/kronos-crm-sub001/queue"

	"github.com/gin-gonic/gin"
)

// WebhookReceive is the single gateway entry point. The shared secret travels
// as the apikey query parameter; a mismatch is rejected before the body is
// even decoded, and nothing of the payload is logged on that path.
//
// Every filtered outcome answers 200 with {"ignored":true,"reason":...} so
// the gateway never retries a logically handled delivery. Hard failures
// answer 500 and lean on gateway redelivery plus the dedup guard.
func WebhookReceive(secret string, store cache.Store, q queue.Enqueuer, sender ingest.TextSender) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.Query("apikey")
		if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			RespondError(c, "unauthorized", http.StatusUnauthorized)
			return
		}

		db := dbpkg.DBInstance(c)
		if db == nil {
			RespondError(c, "db not configured", http.StatusInternalServerError)
			return
		}

		var payload ingest.WebhookPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			RespondError(c, "invalid json", http.StatusBadRequest)
			return
		}

		pipeline := ingest.New(db, store, q, sender)
		result, err := pipeline.Handle(c.Request.Context(), payload)
		if err != nil {
			log.Printf("webhook: delivery failed: %v", err)
			RespondError(c, "processing error", http.StatusInternalServerError)
			return
		}

		if result.Dispatched {
			RespondSuccess(c, gin.H{"success": true})
			return
		}
		RespondSuccess(c, gin.H{"ignored": true, "reason": result.Reason})
	}
}
