package signal

import "time"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	resp := struct {
		Type string `json:"type"`
		TS   int64  `json:"ts"`
	}{
		Type: "pong",
		TS:   time.Now().UnixMilli(),
	}
	ctl.sendJSON(conn, resp)
}
