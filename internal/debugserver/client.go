package debugserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shareindex/peer/internal/hub"
)

const (
	writeWait      = 15 * time.Second
	pongWait       = 90 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 64
)

// wsClient streams statusSnapshot updates to one connected observer.
// Incoming frames are read only to drive the WebSocket keepalive and
// detect disconnects — this surface accepts no client commands.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) start() {
	go c.writePump()
	go c.readPump()
}

func (c *wsClient) sendJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("client_id", c.id).Msg("failed to marshal status snapshot")
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case c.send <- data:
	default:
		log.Warn().Str("client_id", c.id).Msg("debug client send channel full, dropping snapshot")
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client_id", c.id).Msg("debug websocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("debug websocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("debug websocket ping error")
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade debug websocket connection")
		return
	}

	client := newWSClient(conn)
	client.start()
	client.sendJSON(s.snapshot())

	var shareDispose, cacheDispose hub.Disposable
	if s.share != nil {
		shareDispose = s.share.OnChange(func(_, _ hub.ShareState) {
			client.sendJSON(s.snapshot())
		})
	}
	if s.cache != nil {
		cacheDispose = s.cache.OnChange(func(_, _ hub.SharedFileCacheState) {
			client.sendJSON(s.snapshot())
		})
	}

	log.Info().Str("client_id", client.id).Str("remote_addr", conn.RemoteAddr().String()).Msg("debug client connected")

	<-client.done
	if shareDispose != nil {
		shareDispose.Dispose()
	}
	if cacheDispose != nil {
		cacheDispose.Dispose()
	}
	log.Info().Str("client_id", client.id).Msg("debug client disconnected")
}
