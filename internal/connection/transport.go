package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BioHazard786/watchsync/internal/dns"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outgoingBuffer = 64
)

// Conn is a live message transport.
type Conn interface {
	// ReadMessage blocks until the next text message arrives.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one text message.
	WriteMessage(data []byte) error
	// Ping sends a transport-level keepalive.
	Ping() error
	Close() error
}

// Dialer opens transports to a room endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebsocketDialer dials room endpoints with gorilla/websocket, resolving
// hosts through the dns package so flaky system resolvers do not block joins.
type WebsocketDialer struct {
	Header           http.Header
	HandshakeTimeout time.Duration
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		NetDialContext:   dns.DialContext,
		HandshakeTimeout: timeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, d.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Ping() error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = c.conn.Close()
	})
	return err
}

// link is one live transport together with its pumps.
type link struct {
	id       string
	gen      uint64
	conn     Conn
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

func newLink(id string, gen uint64, conn Conn) *link {
	return &link{
		id:       id,
		gen:      gen,
		conn:     conn,
		outgoing: make(chan []byte, outgoingBuffer),
		done:     make(chan struct{}),
	}
}

// readPump forwards inbound messages until the transport fails, then reports
// the close exactly once.
func (l *link) readPump(onMessage func([]byte), onClose func(error)) {
	for {
		data, err := l.conn.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		onMessage(data)
	}
}

// writePump is the only writer on the transport. It also sends keepalive pings.
func (l *link) writePump(onClose func(error)) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-l.outgoing:
			if err := l.conn.WriteMessage(data); err != nil {
				l.conn.Close()
				onClose(err)
				return
			}

		case <-ticker.C:
			if err := l.conn.Ping(); err != nil {
				l.conn.Close()
				onClose(err)
				return
			}

		case <-l.done:
			l.conn.Close()
			return
		}
	}
}

// enqueue hands data to the write pump without blocking.
func (l *link) enqueue(data []byte) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.outgoing <- data:
		return true
	default:
		return false
	}
}

func (l *link) close() {
	l.once.Do(func() { close(l.done) })
}
