package websocket

import (
	"log"
	"net/http"
	"time"

	"diarylink/internal/config"

	"github.com/gorilla/websocket"
)

// Client is a middleman between one websocket connection and the hub.
// The pending feed is strictly server to client; anything the peer writes
// besides control frames is discarded.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound snapshots.
	send chan []byte

	// Authenticated User ID for this client.
	UserID string
}

// readPump drains the connection so control frames (pong, close) are
// processed, and tears the client down when the peer goes away.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.PongWaitSeconds) * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket 错误 (客户端: %s): %v", c.UserID, err)
			}
			break
		}
		// Inbound data frames carry no meaning on this feed.
	}
}

// writePump pumps snapshots from the hub to the websocket connection and
// keeps the connection alive with periodic pings.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Each snapshot is complete, so only the newest queued one
			// matters. Drain the backlog and send the last.
			n := len(c.send)
			for i := 0; i < n; i++ {
				payload = <-c.send
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(time.Duration(wsCfg.WriteWaitSeconds) * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the HTTP request, registers the client with the hub and
// starts its pumps. initialSnapshot, when non-nil, is queued before any
// change-driven snapshot so the client never renders an empty list first.
func ServeWS(hub *Hub, userID string, initialSnapshot []byte, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ServeWS - Upgrade失败:", err)
		return
	}
	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		UserID: userID,
	}
	hub.register(client)
	if initialSnapshot != nil {
		client.send <- initialSnapshot
	}

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	log.Printf("客户端已连接: UserID %s", userID)
}
