package debugserver

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shareindex/peer/internal/hub"
)

func newTestServer(rateLimit bool, capacity int64, interval time.Duration) *Server {
	return New(Config{
		Host:           "127.0.0.1",
		Port:           0,
		Share:          hub.NewManagedState(hub.ShareState{}, nil),
		Cache:          hub.NewSharedFileCacheState(),
		RateLimit:      rateLimit,
		BucketCapacity: capacity,
		RefillInterval: interval,
	})
}

func TestServer_StatusReturnsCurrentState(t *testing.T) {
	s := newTestServer(false, 0, 0)
	s.share.SetValue(func(st hub.ShareState) hub.ShareState {
		st.Ready = true
		st.Files = 3
		return st
	})

	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	var got statusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	if !got.Share.Ready || got.Share.Files != 3 {
		t.Fatalf("statusSnapshot = %+v, want Ready=true Files=3", got)
	}
}

func TestServer_RateLimitRejectsBeyondCapacity(t *testing.T) {
	s := newTestServer(true, 1, time.Hour)

	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	first, err := ts.Client().Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("first GET /status error = %v", err)
	}
	first.Body.Close()
	if first.StatusCode != 200 {
		t.Fatalf("first GET /status status = %d, want 200", first.StatusCode)
	}

	second, err := ts.Client().Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("second GET /status error = %v", err)
	}
	second.Body.Close()
	if second.StatusCode != 429 {
		t.Fatalf("second GET /status status = %d, want 429", second.StatusCode)
	}
}

func TestServer_WebSocketStreamsSnapshotOnConnectAndOnPublish(t *testing.T) {
	s := newTestServer(false, 0, 0)

	ts := httptest.NewServer(s.httpServer.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, initial, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() (initial snapshot) error = %v", err)
	}
	var first statusSnapshot
	if err := json.Unmarshal(initial, &first); err != nil {
		t.Fatalf("unmarshal initial snapshot error = %v", err)
	}
	if first.Share.Files != 0 {
		t.Fatalf("initial snapshot Share.Files = %d, want 0", first.Share.Files)
	}

	s.share.SetValue(func(st hub.ShareState) hub.ShareState {
		st.Files = 7
		return st
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, updated, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() (after publish) error = %v", err)
	}
	var second statusSnapshot
	if err := json.Unmarshal(updated, &second); err != nil {
		t.Fatalf("unmarshal updated snapshot error = %v", err)
	}
	if second.Share.Files != 7 {
		t.Fatalf("updated snapshot Share.Files = %d, want 7", second.Share.Files)
	}
}
