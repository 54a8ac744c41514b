package app

import (
	"fmt"

	"github.com/dkeye/EchoTest/internal/core"
)

type BackpressureAction int

const (
	DropReply BackpressureAction = iota
	Disconnect
)

// Policy names accepted by PolicyByName.
const (
	PolicyDrop       = "drop"
	PolicyDisconnect = "disconnect"
)

// Policy decides what happens when a reply cannot be queued for a client.
type Policy interface {
	OnBackPressure(c core.Client, err error) BackpressureAction
}

// SimplePolicy drops the reply. A client that misses an sdpAnswer retries on its own.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.Client, error) BackpressureAction {
	return DropReply
}

// StrictPolicy disconnects slow clients; their session is released by the transport.
type StrictPolicy struct{}

func (StrictPolicy) OnBackPressure(core.Client, error) BackpressureAction {
	return Disconnect
}

// PolicyByName maps the backpressure config value to a Policy. Empty means drop.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyDrop:
		return SimplePolicy{}, nil
	case PolicyDisconnect:
		return StrictPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown backpressure policy %q", name)
}
