package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/princekumarofficial/gallery-service/internal/types"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubReplacesConnections(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	first := NewClient(nil, "u1", hub)
	second := NewClient(nil, "u1", hub)

	hub.RegisterClient(first)
	hub.RegisterClient(second)
	waitFor(t, func() bool { return hub.GetClientCount() == 1 })

	if _, ok := <-first.send; ok {
		t.Fatal("replaced client should have its send channel closed")
	}

	// a stale unregister must not remove the newer connection
	hub.UnregisterClient(first)
	if !hub.IsUserConnected("u1") {
		t.Fatal("newer connection was removed")
	}

	hub.BroadcastToUser("u1", types.NewEvent(types.EventImageCreated, nil))
	select {
	case msg := <-second.send:
		if len(msg) == 0 {
			t.Fatal("expected an encoded event")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	<-stopped

	if hub.GetClientCount() != 0 {
		t.Fatal("expected all clients to be closed on shutdown")
	}
	if hub.RegisterClient(NewClient(nil, "u2", hub)) {
		t.Fatal("registration must fail after the hub stopped")
	}
}

func TestSendEventDoesNotBlock(t *testing.T) {
	c := NewClient(nil, "u1", NewHub())
	event := types.NewEvent(types.EventImageCreated, nil)

	for i := 0; i < sendBuffer; i++ {
		if err := c.SendEvent(event); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := c.SendEvent(event); err != ErrSlowClient {
		t.Fatalf("expected ErrSlowClient, got %v", err)
	}
}
