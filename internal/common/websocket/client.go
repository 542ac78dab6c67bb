package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

type Client struct {
	ID            string
	Conn          *websocket.Conn
	Send          chan []byte
	Authenticated bool
	LastPong      time.Time
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       id,
		Conn:     conn,
		Send:     make(chan []byte, 16),
		LastPong: time.Now(),
	}
}

// WritePump drains the Send channel into the connection. Exits when Send is
// closed or a write fails.
func (c *Client) WritePump() {
	for msg := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
