package signal

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/roomnet/rendezvous/internal/core"
)

func (ctl *Controller) writePump(c *WsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
	log.Info().Str("module", "signal").Msg("writePump channel closed")
}

// readPump delivers frames to the peer in arrival order; its single
// goroutine is what gives each connection its ordering guarantee.
func (ctl *Controller) readPump(peer *core.Peer, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("session", peer.SessionID()).Msg("readPump closing")
		c.Close()
		peer.ConnectionClosed()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "signal").Str("session", peer.SessionID()).Msg("readPump read error")
			return
		}
		peer.ProcessMessage(data)
	}
}
