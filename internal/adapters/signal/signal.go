package signal

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomnet/rendezvous/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller upgrades HTTP requests and pumps frames between gorilla
// connections and the core server. The core only ever sees the
// core.Connection interface.
type Controller struct {
	Server    *core.Server
	ReadLimit int64
}

func NewController(server *core.Server, readLimit int64) *Controller {
	return &Controller{Server: server, ReadLimit: readLimit}
}

// WsConn adapts a gorilla connection to core.Connection. Sends queue on
// a buffered channel; a full queue drops the frame rather than blocking
// a room broadcast.
type WsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleSession upgrades the request and hands the connection to the
// core server as a new peer.
func (ctl *Controller) HandleSession(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
	peer := ctl.Server.Accept(conn)
	log.Info().Str("module", "signal").Str("session", peer.SessionID()).Msg("new WS connection")

	go ctl.writePump(conn)
	go ctl.readPump(peer, conn)
}
