// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxClientIDLen = 64

var (
	ErrClientIDEmpty   = errors.New("client id empty")
	ErrClientIDTooLong = errors.New("client id too long")
)

// ClientID identifies one connected client. It is the registry key for test sessions.
type ClientID string

// NewClientID is a tiny helper to avoid ad-hoc token generation in adapters.
func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

func ParseClientID(raw string) (ClientID, error) {
	if len(raw) == 0 {
		return "", ErrClientIDEmpty
	}
	if len(raw) > MaxClientIDLen {
		return "", ErrClientIDTooLong
	}
	return ClientID(raw), nil
}

// Valid reports whether a session may be keyed by this id.
func (id ClientID) Valid() bool {
	return id != "" && len(id) <= MaxClientIDLen
}
