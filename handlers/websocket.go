package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"kick-prediction-api/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// LivePredictions streams newly persisted predictions to the client.
// Browsers cannot set headers on websocket handshakes, so the API key is
// taken from a query parameter here.
func LivePredictions(cache *services.CacheService, apiKey string) gin.HandlerFunc {
	secret := []byte(apiKey)

	return func(c *gin.Context) {
		presented := c.Query("api_key")
		if presented == "" || subtle.ConstantTimeCompare([]byte(presented), secret) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"detail": "Invalid API key."})
			return
		}

		pubsub := cache.Subscribe(c.Request.Context(), services.LiveChannel)
		if pubsub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Live feed unavailable."})
			return
		}
		defer pubsub.Close()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				err := conn.WriteJSON(gin.H{
					"type": "prediction",
					"data": msg.Payload,
				})
				if err != nil {
					log.Warn().Err(err).Msg("websocket write failed")
					return
				}
			}
		}
	}
}
