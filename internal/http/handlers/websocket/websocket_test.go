package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/princekumarofficial/gallery-service/internal/events"
	"github.com/princekumarofficial/gallery-service/internal/types"
	"github.com/princekumarofficial/gallery-service/internal/types/users"
	"github.com/princekumarofficial/gallery-service/internal/utils/jwt"
	wsClient "github.com/princekumarofficial/gallery-service/internal/websocket"
)

const testSecret = "test-secret"

func TestWebSocketRejectsMissingAndInvalidTokens(t *testing.T) {
	hub := wsClient.NewHub()
	handler := WebSocketHandler(hub, testSecret)

	for _, target := range []string{"/ws", "/ws?token=bogus"} {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
	}
}

func TestWebSocketDeliversImageCreated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := wsClient.NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(WebSocketHandler(hub, testSecret))
	defer srv.Close()

	token, err := jwt.CreateToken(users.Identity{ID: "u1", Username: "neko"}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !hub.IsUserConnected("u1") {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	publisher := events.NewEventPublisher(hub)
	if err := publisher.PublishImageCreated(&types.ImageCreatedEvent{ImageID: "abc1234", UploaderID: "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got struct {
		Type string `json:"type"`
		Data struct {
			ImageID string `json:"image_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	if got.Type != string(types.EventImageCreated) || got.Data.ImageID != "abc1234" {
		t.Fatalf("unexpected event %s", raw)
	}
}
