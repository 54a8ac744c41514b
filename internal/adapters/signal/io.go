package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// envelope is the part of every inbound message the transport routes on.
type envelope struct {
	Type string `json:"type"`
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, client core.Client, c *WsSignalConn) {
	cid := client.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		c.Close()
		ctl.Handler.Remove(context.WithoutCancel(ctx), client)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(cid)
		}
	}()

	pongWait := ctl.pingPeriod() * 10 / 9
	c.conn.SetReadLimit(ctl.readLimit())
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, client, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, client core.Client, c *WsSignalConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(client.ID())).Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	case "kurento":
		if env.Mode != domain.ModeTest {
			log.Debug().Str("module", "signal").Str("mode", env.Mode).Msg("mode not served")
			return
		}
		if ctl.Limiter != nil && !ctl.Limiter.Allow(client.ID()) {
			log.Warn().Str("module", "signal").Str("cid", string(client.ID())).Str("cmd", env.ID).Msg("rate limited")
			return
		}
		// OnMessage logs its own failures.
		_ = ctl.Handler.OnMessage(ctx, client, env.ID, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}
