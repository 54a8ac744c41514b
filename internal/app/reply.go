package app

import (
	"encoding/json"

	"github.com/dkeye/EchoTest/internal/core"
	"github.com/dkeye/EchoTest/internal/domain"
	"github.com/rs/zerolog/log"
)

// Reply ids sent to clients.
const (
	ReplyCanRecord     = "canRecord"
	ReplyCanPlay       = "canPlay"
	ReplyStartResponse = "startResponse"
	ReplyPlayResponse  = "playResponse"
	ReplyRecStopped    = "recStopped"
	ReplyPlayStopped   = "playStopped"
	ReplyIceCandidate  = "iceCandidate"
)

const (
	ParamIce       = "iceServers"
	ParamCandidate = "candidate"
	ParamSdpAnswer = "sdpAnswer"
)

// Message is a structured reply; the transport encodes it.
type Message map[string]any

// NewTestMessage returns a reply envelope marked with the test mode.
func NewTestMessage(id string) Message {
	return Message{
		"type":         "kurento",
		domain.TagMode: domain.ModeTest,
		"id":           id,
	}
}

func (m Message) Put(key string, value any) Message {
	m[key] = value
	return m
}

// Sender pushes replies to a client.
type Sender interface {
	SendClient(c core.Client, msg Message)
}

// Replier encodes replies as JSON and queues them on the client's signal connection.
type Replier struct {
	Policy Policy
}

func (r Replier) SendClient(c core.Client, msg Message) {
	if c == nil || c.Signal() == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.reply").Msg("marshal reply")
		return
	}
	err = c.Signal().TrySend(b)
	if err == nil {
		return
	}
	action := DropReply
	if r.Policy != nil {
		action = r.Policy.OnBackPressure(c, err)
	}
	switch action {
	case Disconnect:
		log.Warn().Err(err).Str("module", "app.reply").Str("cid", string(c.ID())).Msg("reply not queued, disconnecting")
		c.Signal().Close()
	case DropReply:
		log.Warn().Err(err).Str("module", "app.reply").Str("cid", string(c.ID())).Any("id", msg["id"]).Msg("reply dropped")
	}
}
