package mirror

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEncodeDecodeState(t *testing.T) {
	in := StatePayload{IsPlaying: true, Openness: 0.42, ActiveIndex: 3}

	data, err := EncodeState(in)
	if err != nil {
		t.Fatalf("EncodeState failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"STATE_UPDATE"`) {
		t.Errorf("missing type tag: %s", data)
	}
	if !strings.Contains(string(data), `"opennessValue":0.42`) {
		t.Errorf("missing openness field: %s", data)
	}

	out, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestDecodeStateRejectsUnknownType(t *testing.T) {
	if _, err := DecodeState([]byte(`{"type": "PING", "payload": {}}`)); err == nil {
		t.Error("expected error for unknown message type")
	}
	if _, err := DecodeState([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed message")
	}
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	want := h.Count() + 1
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// 等连接登记完成
	deadline := time.Now().Add(time.Second)
	for h.Count() < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.Count() < want {
		t.Fatal("connection not registered")
	}
	return conn
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialHub(t, h)

	h.SendState(StatePayload{IsPlaying: true, Openness: 0.7, ActiveIndex: 1})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	p, err := DecodeState(data)
	if err != nil {
		t.Fatalf("DecodeState failed: %v", err)
	}
	if !p.IsPlaying || p.Openness != 0.7 || p.ActiveIndex != 1 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestHubDropsDeadConnections(t *testing.T) {
	h := NewHub()
	defer h.Close()
	conn := dialHub(t, h)

	conn.Close()

	// 发送若干次，死连接最终被清理
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() > 0 && time.Now().Before(deadline) {
		h.SendState(StatePayload{})
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.Count(); got != 0 {
		t.Errorf("dead connection not removed, count = %d", got)
	}
}

// 一个只连接、从不读取的镜像窗口最终会填满发送缓冲。
// 广播必须在写超时后断开它，而不是一直阻塞调用方。
func TestHubStalledWindowDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub()
	defer h.Close()
	dialHub(t, h) // 故意不读取任何消息

	payload := StatePayload{IsPlaying: true, Openness: 0.5}
	start := time.Now()
	deadline := start.Add(5 * time.Second)
	for h.Count() > 0 && time.Now().Before(deadline) {
		h.SendState(payload)
	}
	if got := h.Count(); got != 0 {
		t.Fatalf("stalled window not dropped, count = %d", got)
	}
	// 单次广播的耗时上限由写超时决定，远小于整体时限
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("broadcast loop took %v, looks blocked", elapsed)
	}
}

func TestNilHubIsNoop(t *testing.T) {
	var h *Hub
	// 不应 panic
	h.SendState(StatePayload{IsPlaying: true})
	if h.Count() != 0 {
		t.Error("nil hub count should be 0")
	}
	h.Close()
}
