package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"speakmatch/backend/internal/signalhub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Дозволяє з'єднання з будь-якого домену. У продакшені налаштувати!
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter since browsers cannot set headers on WebSocket.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return c.Query("token")
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	// Валідація та отримання AnonID з JWT
	anonID, err := h.Auth.Validate(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Кожне з'єднання отримує власний transport ID
	client := signalhub.NewWebSocketClient(h.Hub, conn, uuid.NewString(), anonID, h.sendBuffer)
	h.Hub.Register(client)

	h.log.Info().Str("transport_id", client.TransportID).Str("user_id", anonID).Msg("websocket connected")
	client.Run()
}
