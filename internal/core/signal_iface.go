package core

import "github.com/dkeye/EchoTest/internal/domain"

// Frame is a raw encoded reply.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Client is a connected endpoint the core can reply to.
type Client interface {
	ID() domain.ClientID
	Signal() SignalConnection
}
