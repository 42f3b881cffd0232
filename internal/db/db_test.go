package db

import (
	"context"
	"testing"
)

func TestPool_nilIsSafe(t *testing.T) {
	var p *Pool
	p.Close()
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("expected nil ping error for unconfigured pool, got %v", err)
	}
	if _, err := p.Payload(context.Background(), "SELECT 1"); err == nil {
		t.Fatalf("expected payload error for unconfigured pool")
	}
}
