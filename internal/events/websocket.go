package events

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crmdash-go/internal/constants"
	"crmdash-go/internal/monitoring"

	ws "github.com/gorilla/websocket"
)

// NewUpgrader accepts same-host origins, requests without an Origin header,
// and any origin listed in allowed (full origin or bare host).
func NewUpgrader(allowed []string) ws.Upgrader {
	return ws.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}}
}

// StreamWebSocket mirrors StreamSSE over an upgraded connection: each event
// becomes one text message. Incoming messages are discarded; a read error
// ends the stream.
func StreamWebSocket(ctx context.Context, conn *ws.Conn, b *Broadcaster, buffer int, pingInterval time.Duration) error {
	if pingInterval <= 0 {
		pingInterval = constants.SSEHeartbeatInterval
	}
	sub := b.Subscribe(buffer)
	defer b.Unsubscribe(sub)

	readTimeout := 3 * pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			monitoring.SSEDisconnectsTotal.WithLabelValues("websocket", "shutdown").Inc()
			_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, ""), time.Now().Add(constants.WebSocketWriteTimeout))
			return nil
		case <-gone:
			monitoring.SSEDisconnectsTotal.WithLabelValues("websocket", "client_gone").Inc()
			return nil
		case <-sub.Done():
			monitoring.SSEDisconnectsTotal.WithLabelValues("websocket", "dropped").Inc()
			_ = conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseTryAgainLater, "too slow"), time.Now().Add(constants.WebSocketWriteTimeout))
			return ErrDropped
		case msg := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := conn.WriteMessage(ws.TextMessage, msg); err != nil {
				monitoring.SSEDisconnectsTotal.WithLabelValues("websocket", "write_error").Inc()
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(ws.PingMessage, []byte("ping"), time.Now().Add(constants.WebSocketWriteTimeout)); err != nil {
				monitoring.SSEDisconnectsTotal.WithLabelValues("websocket", "write_error").Inc()
				return err
			}
		}
	}
}
