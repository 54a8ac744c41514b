package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 8080 || cfg.PingPeriod != 54*time.Second || cfg.ReadLimit != 32768 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Kuid == "" {
		t.Error("kuid not generated")
	}
	if ice := cfg.PionICEServers(); len(ice) != 1 || ice[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("unexpected ice servers %+v", ice)
	}
	if cfg.Backpressure != "drop" || cfg.Turn.Force {
		t.Errorf("unexpected backpressure/force defaults %q %v", cfg.Backpressure, cfg.Turn.Force)
	}
	if cfg.Record.MaxDuration != 30*time.Second || cfg.Rate.Interval != time.Second {
		t.Errorf("unexpected record/rate defaults %+v %+v", cfg.Record, cfg.Rate)
	}
}

func TestFileValues(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9000
backpressure: disconnect
kuid: kms-1
ice_servers:
  - urls: ["stun:a.example.org"]
  - urls: ["turn:b.example.org"]
    username: u
    credential: p
turn:
  url: turn:turn.example.org
  secret: s
  ttl: 1h
webrtc:
  min_port: 40000
  max_port: 40100
record:
  max_duration: 10s
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9000 || cfg.Kuid != "kms-1" || cfg.Backpressure != "disconnect" {
		t.Errorf("unexpected top level %+v", cfg)
	}
	ice := cfg.PionICEServers()
	if len(ice) != 2 || ice[1].Username != "u" || ice[1].Credential != "p" {
		t.Errorf("unexpected ice servers %+v", ice)
	}
	if cfg.Turn.TTL != time.Hour || cfg.WebRTC.MinPort != 40000 || cfg.WebRTC.MaxPort != 40100 {
		t.Errorf("unexpected nested values %+v %+v", cfg.Turn, cfg.WebRTC)
	}
	if cfg.Record.MaxDuration != 10*time.Second {
		t.Errorf("unexpected record %+v", cfg.Record)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: 9000\n")
	t.Setenv("ECHOTEST_PORT", "9100")
	t.Setenv("ECHOTEST_TURN_URL", "turn:env.example.org")
	t.Setenv("ECHOTEST_TURN_SECRET", "env-secret")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Port != 9100 || cfg.Turn.URL != "turn:env.example.org" || cfg.Turn.Secret != "env-secret" {
		t.Errorf("env not applied: port=%d turn=%+v", cfg.Port, cfg.Turn)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "port: 70000\n"},
		{"half port range", "webrtc:\n  min_port: 40000\n"},
		{"inverted port range", "webrtc:\n  min_port: 40100\n  max_port: 40000\n"},
		{"turn without secret", "turn:\n  url: turn:x.example.org\n"},
		{"backpressure", "backpressure: kick\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.body)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
