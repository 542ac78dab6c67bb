package position

import (
	"net/http"
	"time"

	"ride-engagement/internal/common/auth"
	commonws "ride-engagement/internal/common/websocket"
	"ride-engagement/internal/engagement/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type positionMessage struct {
	Type           string  `json:"type"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	HeadingDegrees float64 `json:"heading_degrees"`
	SpeedKmh       float64 `json:"speed_kmh"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	TimestampMs    int64   `json:"timestamp_ms"`
}

// WSHandler accepts the driver app's live GPS stream. First message must be
// an auth message carrying a driver token; every position message after that
// updates the feed.
type WSHandler struct {
	hub      *commonws.Hub
	feed     *Feed
	verifier *auth.Verifier
	log      *zap.Logger
}

func NewWSHandler(hub *commonws.Hub, feed *Feed, verifier *auth.Verifier, log *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, feed: feed, verifier: verifier, log: log}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	var authMsg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "auth failed"))
		_ = conn.Close()
		return
	}

	claims, err := h.verifier.ValidateToken(authMsg.Token)
	if err != nil {
		h.log.Warn("websocket auth rejected", zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "invalid token"))
		_ = conn.Close()
		return
	}
	if claims.Role != auth.RoleDriver {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "not a driver"))
		_ = conn.Close()
		return
	}

	client := commonws.NewClient("driver_"+claims.UserID, conn)
	h.hub.AddClient(client)
	h.log.Info("driver position stream connected", zap.String("client_id", client.ID))

	go client.WritePump()

	pingStop := make(chan struct{})
	go h.pingLoop(conn, client.ID, pingStop)

	defer func() {
		close(pingStop)
		h.hub.RemoveClient(client.ID)
		close(client.Send)
		_ = conn.Close()
		h.log.Info("driver position stream closed", zap.String("client_id", client.ID))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		var msg positionMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "" && msg.Type != "position" {
			continue
		}

		ts := time.Now()
		if msg.TimestampMs > 0 {
			ts = time.UnixMilli(msg.TimestampMs)
		}
		h.feed.Update(model.Position{
			Latitude:       msg.Latitude,
			Longitude:      msg.Longitude,
			HeadingDegrees: msg.HeadingDegrees,
			SpeedKmh:       msg.SpeedKmh,
			AccuracyMeters: msg.AccuracyMeters,
			Timestamp:      ts,
		})
	}
}

func (h *WSHandler) pingLoop(conn *websocket.Conn, clientID string, stop chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				h.log.Debug("ping failed", zap.String("client_id", clientID), zap.Error(err))
				return
			}
		}
	}
}
