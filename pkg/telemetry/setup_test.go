package telemetry

import (
	"context"
	"testing"
)

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), "", "kms-test")
	if err != nil || tp != nil {
		t.Fatalf("expected nil provider, got %v, %v", tp, err)
	}
}

func TestInitTracerWithEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), "localhost:4318", "kms-test")
	if err != nil {
		t.Fatalf("InitTracer: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "span")
	span.End()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tp.Shutdown(ctx)
}
