package redis

import (
	"context"
	"testing"
	"time"
)

func TestNewWithoutAddrIsOptional(t *testing.T) {
	rdb, err := New(context.Background(), nil, Config{Addr: "  "})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if rdb != nil {
		t.Fatalf("expected nil client for empty address")
	}
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	_, err := New(context.Background(), nil, Config{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected ping failure")
	}
}
