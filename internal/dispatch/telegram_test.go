package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramSenderSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	sender := NewTelegramSender("token", "default-chat", srv.URL, time.Second, zerolog.Nop())
	err := sender.Send(context.Background(), "chat-42", "title", "body", map[string]string{"event_id": "e1"})
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}

	if received["chat_id"] != "chat-42" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "title") || !strings.Contains(received["text"], "body") {
		t.Fatalf("text 应包含标题与正文: %q", received["text"])
	}
}

func TestTelegramSenderDefaultChat(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	sender := NewTelegramSender("token", "default-chat", srv.URL, time.Second, zerolog.Nop())
	if err := sender.Send(context.Background(), "", "title", "body", nil); err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if received["chat_id"] != "default-chat" {
		t.Fatalf("空 recipient 应退回默认会话: %#v", received)
	}
}

func TestTelegramSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	sender := NewTelegramSender("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := sender.Send(context.Background(), "chat", "title", "body", nil); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramSenderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sender := NewTelegramSender("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := sender.Send(context.Background(), "chat", "title", "body", nil); err == nil {
		t.Fatal("5xx 响应应报错")
	}
}
