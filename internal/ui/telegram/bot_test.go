package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func fakeBotAPI(t *testing.T, failSend bool) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"molt","username":"molt_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if failSend {
				w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			r.ParseForm()
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+"|"+r.Form.Get("text"))
			mu.Unlock()
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sent
}

func TestNotifierSendsEscapedMessage(t *testing.T) {
	srv, sent := fakeBotAPI(t, false)
	n, err := NewNotifierWithEndpoint("token", "42", srv.URL+"/bot%s/%s", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewNotifierWithEndpoint: %v", err)
	}

	n.Notify(context.Background(), "Posted: my_post *now*")

	if len(*sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(*sent))
	}
	got := (*sent)[0]
	if !strings.HasPrefix(got, "42|") || !strings.Contains(got, `my\_post \*now\*`) {
		t.Errorf("message = %q", got)
	}
}

func TestNotifierSwallowsFailures(t *testing.T) {
	srv, _ := fakeBotAPI(t, true)
	n, err := NewNotifierWithEndpoint("token", "42", srv.URL+"/bot%s/%s", zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	n.Notify(context.Background(), "boom")
}

func TestNotifierRejectsBadChatID(t *testing.T) {
	if _, err := NewNotifierWithEndpoint("token", "not-a-number", "http://127.0.0.1:1/bot%s/%s", zerolog.Nop()); err == nil {
		t.Fatal("expected error for bad chat id")
	}
}
