package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"speakmatch/backend/internal/config"
	"speakmatch/backend/internal/signalhub"
)

// Handler містить посилання на Hub
type Handler struct {
	Hub  *signalhub.Hub
	Auth *TokenIssuer

	sendBuffer int
	log        zerolog.Logger
}

func NewHandler(hub *signalhub.Hub, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		Hub:        hub,
		Auth:       NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.ServiceName),
		sendBuffer: cfg.SendBuffer,
		log:        log.With().Str("component", "http").Logger(),
	}
}

// GetStats повертає поточний стан черги та кімнат
func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Hub.Stats())
}

func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
