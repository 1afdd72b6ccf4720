package wsconfirm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func TestConfirmer_Disabled(t *testing.T) {
	c := New("")
	if c.Enabled() {
		t.Fatal("expected Enabled() false for empty url")
	}
	if _, err := c.WaitForSignature(context.Background(), "SIG"); err == nil {
		t.Fatal("expected error when no endpoint configured")
	}
}

func TestConfirmer_WaitForSignature_Success(t *testing.T) {
	srv := httptest.NewServer(websocketHandler(t, false))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL)
	if !c.Enabled() {
		t.Fatal("expected Enabled() true")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.WaitForSignature(ctx, "SIG123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Signature != "SIG123" || res.Err != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestConfirmer_WaitForSignature_OnChainFailure(t *testing.T) {
	srv := httptest.NewServer(websocketHandler(t, true))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := c.WaitForSignature(ctx, "SIG456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Err == "" {
		t.Fatal("expected a non-empty Err for an on-chain failed transaction")
	}
}

func websocketHandler(t *testing.T, fail bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		conn.WriteJSON(subscribeAck{ID: req.ID, Result: 7})

		errVal := interface{}(nil)
		if fail {
			errVal = map[string]interface{}{"InstructionError": []interface{}{0, "custom program error"}}
		}
		note := map[string]interface{}{
			"method": "signatureNotification",
			"params": map[string]interface{}{
				"subscription": 7,
				"result": map[string]interface{}{
					"context": map[string]interface{}{"slot": 123},
					"value":   map[string]interface{}{"err": errVal},
				},
			},
		}
		conn.WriteJSON(note)
	}
}
