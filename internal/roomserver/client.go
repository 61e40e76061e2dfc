package roomserver

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// Client is one websocket connection to a room.
type Client struct {
	// ID identifies the connection in logs.
	ID string

	// User is the identity the client joined with.
	User string

	RoomID string

	hub  *Hub
	conn *websocket.Conn

	// send is drained by WritePump. The hub closes it on unregister.
	send chan protocol.Frame
}

func newClient(hub *Hub, conn *websocket.Conn, id, roomID, user string) *Client {
	return &Client{
		ID:     id,
		User:   user,
		RoomID: roomID,
		hub:    hub,
		conn:   conn,
		send:   make(chan protocol.Frame, sendBuffer),
	}
}

// ReadPump pumps frames from the websocket connection to the hub. At most
// one ReadPump runs per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("Read failed", "client", c.ID, "error", err)
			}
			return
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			slog.Warn("Invalid frame", "client", c.ID, "room", c.RoomID, "user", c.User, "error", err)
			continue
		}

		if !c.hub.submit(c, f) {
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection. At most
// one WritePump runs per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(f)
			if err != nil {
				slog.Error("Failed to encode frame", "type", f.Type, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Write failed", "client", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
