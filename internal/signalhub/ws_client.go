package signalhub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"speakmatch/backend/internal/config"
	"speakmatch/backend/internal/models"
)

// WebSocketClient реалізує інтерфейс signalhub.Client
type WebSocketClient struct {
	TransportID string
	UserID      string
	Conn        *websocket.Conn
	Hub         *Hub
	Send        chan models.Event

	log       zerolog.Logger
	closeOnce sync.Once
}

// NewWebSocketClient wraps an upgraded connection.
func NewWebSocketClient(hub *Hub, conn *websocket.Conn, transportID, userID string, buffer int) *WebSocketClient {
	return &WebSocketClient{
		TransportID: transportID,
		UserID:      userID,
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan models.Event, buffer),
		log: hub.log.With().
			Str("component", "ws-client").
			Str("transport_id", transportID).
			Str("user_id", userID).
			Logger(),
	}
}

func (c *WebSocketClient) GetTransportID() string              { return c.TransportID }
func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump)
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	// Transport loss from any cause ends up in the disconnect coordinator.
	defer func() {
		c.Hub.HandleDisconnect(c.TransportID)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("unexpected websocket close")
			}
			break
		}

		var evt models.Event
		if err := json.Unmarshal(message, &evt); err != nil {
			c.log.Warn().Err(err).Msg("error decoding event")
			continue // Пропускаємо невірне повідомлення
		}

		c.Hub.HandleEvent(c, evt)
	}
}

// writePump читає події з каналу Send і записує їх у WebSocket, одна подія на кадр.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(evt)
			if err != nil {
				c.log.Error().Err(err).Str("event", evt.Type).Msg("error encoding event")
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			// Надсилаємо Ping для підтримки з'єднання активним
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
