package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrCandidateMalformed = errors.New("malformed ice candidate")

// Candidate is one trickled ICE candidate. Only the media engine interprets it.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ParseCandidate extracts the nested "candidate" object of an iceCandidate message.
// All three fields must be present.
func ParseCandidate(payload []byte) (Candidate, error) {
	var msg struct {
		Candidate *struct {
			Candidate     *string `json:"candidate"`
			SDPMid        *string `json:"sdpMid"`
			SDPMLineIndex *int    `json:"sdpMLineIndex"`
		} `json:"candidate"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Candidate{}, fmt.Errorf("%w: %v", ErrCandidateMalformed, err)
	}
	c := msg.Candidate
	if c == nil || c.Candidate == nil || c.SDPMid == nil || c.SDPMLineIndex == nil {
		return Candidate{}, fmt.Errorf("%w: missing field", ErrCandidateMalformed)
	}
	if *c.SDPMLineIndex < 0 || *c.SDPMLineIndex > 0xffff {
		return Candidate{}, fmt.Errorf("%w: sdpMLineIndex %d out of range", ErrCandidateMalformed, *c.SDPMLineIndex)
	}
	return Candidate{
		Candidate:     *c.Candidate,
		SDPMid:        *c.SDPMid,
		SDPMLineIndex: uint16(*c.SDPMLineIndex),
	}, nil
}
