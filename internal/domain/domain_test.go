package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		want      Candidate
		expectErr bool
	}{
		{
			name:    "full candidate",
			payload: `{"id":"iceCandidate","candidate":{"candidate":"c1","sdpMid":"0","sdpMLineIndex":0}}`,
			want:    Candidate{Candidate: "c1", SDPMid: "0", SDPMLineIndex: 0},
		},
		{
			name:    "second m-line",
			payload: `{"candidate":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"1","sdpMLineIndex":1}}`,
			want:    Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: "1", SDPMLineIndex: 1},
		},
		{name: "missing nested object", payload: `{"id":"iceCandidate"}`, expectErr: true},
		{name: "missing mid", payload: `{"candidate":{"candidate":"c1","sdpMLineIndex":0}}`, expectErr: true},
		{name: "missing index", payload: `{"candidate":{"candidate":"c1","sdpMid":"0"}}`, expectErr: true},
		{name: "negative index", payload: `{"candidate":{"candidate":"c1","sdpMid":"0","sdpMLineIndex":-1}}`, expectErr: true},
		{name: "index is a string", payload: `{"candidate":{"candidate":"c1","sdpMid":"0","sdpMLineIndex":"0"}}`, expectErr: true},
		{name: "not json", payload: `candidate`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidate([]byte(tt.payload))
			if (err != nil) != tt.expectErr {
				t.Fatalf("ParseCandidate() error = %v, expectErr %v", err, tt.expectErr)
			}
			if tt.expectErr {
				if !errors.Is(err, ErrCandidateMalformed) {
					t.Errorf("expected ErrCandidateMalformed, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParseClientID(t *testing.T) {
	if _, err := ParseClientID(""); !errors.Is(err, ErrClientIDEmpty) {
		t.Errorf("expected ErrClientIDEmpty, got %v", err)
	}
	if _, err := ParseClientID(strings.Repeat("a", MaxClientIDLen+1)); !errors.Is(err, ErrClientIDTooLong) {
		t.Errorf("expected ErrClientIDTooLong, got %v", err)
	}
	id, err := ParseClientID("abc")
	if err != nil || id != "abc" {
		t.Errorf("expected abc, got %q (%v)", id, err)
	}
	if !NewClientID().Valid() {
		t.Error("generated client id is not valid")
	}
	if ClientID("").Valid() {
		t.Error("empty client id reported valid")
	}
}

func TestTestTags(t *testing.T) {
	tags := TestTags("kms-1")
	pairs := tags.Pairs()
	want := [][2]string{{TagKuid, "kms-1"}, {TagMode, ModeTest}, {TagRoom, ModeTest}}
	if len(pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %d", len(want), len(pairs))
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pair %d: expected %v, got %v", i, want[i], pairs[i])
		}
	}
}
