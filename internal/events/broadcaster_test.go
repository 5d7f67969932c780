package events

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
)

func receive(t *testing.T, s *Subscription) []byte {
	t.Helper()
	select {
	case msg := <-s.C():
		return msg
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s received nothing", s.ID())
		return nil
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case msg := <-s.C():
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

func TestBroadcastFanout(t *testing.T) {
	b := NewBroadcaster()
	s1, s2, s3 := b.Subscribe(4), b.Subscribe(4), b.Subscribe(4)

	n, err := b.Broadcast(NewEvent("metrics", map[string]int{"quote_sent_count": 3}))
	if err != nil || n != 3 {
		t.Fatalf("expected 3 deliveries, got %d (%v)", n, err)
	}
	m1, m2, m3 := receive(t, s1), receive(t, s2), receive(t, s3)
	if !bytes.Equal(m1, m2) || !bytes.Equal(m2, m3) {
		t.Fatalf("payloads differ: %s / %s / %s", m1, m2, m3)
	}

	b.Unsubscribe(s2)
	n, _ = b.Broadcast(NewEvent("metrics", nil))
	if n != 2 {
		t.Fatalf("expected 2 deliveries after unsubscribe, got %d", n)
	}
	receive(t, s1)
	receive(t, s3)
	assertEmpty(t, s2)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(1)
	b.Unsubscribe(s)
	b.Unsubscribe(s)
	b.Unsubscribe(nil)
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Len())
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected Done to be closed")
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe(1)
	fast := b.Subscribe(8)

	if n, _ := b.Broadcast(NewEvent("a", nil)); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if n, _ := b.Broadcast(NewEvent("b", nil)); n != 1 {
		t.Fatalf("expected the full subscriber to be skipped, got %d", n)
	}
	if b.Len() != 1 {
		t.Fatalf("expected slow subscriber removed, have %d", b.Len())
	}
	<-slow.Done()
	receive(t, fast)
	receive(t, fast)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := NewBroadcaster()
	_, _ = b.Broadcast(NewEvent("early", nil))
	s := b.Subscribe(4)
	assertEmpty(t, s)
}

func TestConcurrentSubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := b.Subscribe(2)
			b.Unsubscribe(s)
			b.Unsubscribe(s)
		}()
		go func() {
			defer wg.Done()
			_, _ = b.Broadcast(NewEvent("tick", nil))
		}()
	}
	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("expected all subscribers gone, got %d", b.Len())
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	b := NewBroadcaster()
	s := b.Subscribe(1)
	b.Close()
	<-s.Done()
	late := b.Subscribe(1)
	<-late.Done()
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers after close")
	}
}

func waitForSubscribers(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, b.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamSSE(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = StreamSSE(r.Context(), w, b, 4, time.Hour)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitForSubscribers(t, b, 1)
	if _, err := b.Broadcast(map[string]string{"type": "metrics"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if strings.TrimSpace(line) != `data: {"type":"metrics"}` {
				t.Fatalf("unexpected frame %q", line)
			}
			break
		}
	}

	cancel()
	waitForSubscribers(t, b, 0)
}

func TestStreamWebSocket(t *testing.T) {
	b := NewBroadcaster()
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = StreamWebSocket(r.Context(), conn, b, 4, time.Hour)
	}))
	defer srv.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForSubscribers(t, b, 1)
	if _, err := b.Broadcast(map[string]int{"count": 1}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"count":1}` {
		t.Fatalf("unexpected message %s", msg)
	}

	conn.Close()
	waitForSubscribers(t, b, 0)
}

func TestUpgraderOriginCheck(t *testing.T) {
	up := NewUpgrader([]string{"https://dash.example.com"})
	req := httptest.NewRequest(http.MethodGet, "http://api.local/dashboard/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	if up.CheckOrigin(req) {
		t.Fatalf("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://dash.example.com")
	if !up.CheckOrigin(req) {
		t.Fatalf("allowed origin rejected")
	}
}
