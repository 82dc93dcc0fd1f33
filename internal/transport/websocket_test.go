// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"scribe/internal/analysis"
)

func TestWebSocketBroadcastsFrames(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+wst.Addr()+WebSocketPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	buckets := []float32{0.25, 1, 0}
	sent := Frame{Sequence: 3, Timestamp: 42, Mode: analysis.ModeWaveform, Buckets: buckets}
	if err := wst.Send(sent); err != nil {
		t.Fatal(err)
	}
	buckets[0] = 0.75 // Send must not retain the slice.

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Frame
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	if got.Sequence != 3 || got.Timestamp != 42 || got.Mode != analysis.ModeWaveform ||
		len(got.Buckets) != 3 || got.Buckets[0] != 0.25 {
		t.Errorf("received %+v", got)
	}

	var raw map[string]any
	json.Unmarshal(msg, &raw)
	if raw["mode"] != "waveform" {
		t.Errorf("mode encoded as %v", raw["mode"])
	}
}

func TestWebSocketSendAfterClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := wst.Send(Frame{}); err == nil {
		t.Error("Send succeeded after Close")
	}
}

func TestWebSocketDropsWhenQueueFull(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	// Hold the client lock so the broadcaster stalls on its first message.
	wst.clientsMu.Lock()
	for range broadcastQueue + 10 {
		if err := wst.Send(Frame{}); err != nil {
			t.Fatal(err)
		}
	}
	wst.clientsMu.Unlock()
	if wst.Dropped() == 0 {
		t.Error("no messages dropped with a full queue")
	}
}
