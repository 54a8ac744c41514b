package core

import (
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/pion/webrtc/v4"
)

// TurnProvider supplies the ICE/TURN server list forwarded to clients.
type TurnProvider interface {
	TurnServers(cid domain.ClientID, force bool) []webrtc.ICEServer
}
