package core

import "github.com/dkeye/EchoTest/internal/domain"

// client implements Client by pairing identity + transport.
type client struct {
	id   domain.ClientID
	conn SignalConnection
}

func NewClient(id domain.ClientID, conn SignalConnection) Client {
	return &client{id: id, conn: conn}
}

func (c *client) ID() domain.ClientID      { return c.id }
func (c *client) Signal() SignalConnection { return c.conn }
