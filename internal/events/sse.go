package events

import (
	"context"
	"errors"
	"net/http"
	"time"

	"crmdash-go/internal/constants"
	"crmdash-go/internal/monitoring"
)

// ErrDropped is returned by the stream writers when the broadcaster removed
// the subscriber, for example because it fell behind.
var ErrDropped = errors.New("subscriber dropped by broadcaster")

// ErrStreamingUnsupported means the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported by response writer")

// StreamSSE subscribes to b and writes every event as a "data: <json>" frame
// until ctx ends, the subscriber is dropped, or a write fails. A comment line
// is sent every heartbeat to keep proxies from closing the idle connection.
func StreamSSE(ctx context.Context, w http.ResponseWriter, b *Broadcaster, buffer int, heartbeat time.Duration) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	if heartbeat <= 0 {
		heartbeat = constants.SSEHeartbeatInterval
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := b.Subscribe(buffer)
	defer b.Unsubscribe(sub)

	if err := writeFrame(w, flusher, ": connected "+sub.ID()+"\n\n"); err != nil {
		monitoring.SSEDisconnectsTotal.WithLabelValues("sse", "write_error").Inc()
		return err
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			monitoring.SSEDisconnectsTotal.WithLabelValues("sse", "client_gone").Inc()
			return nil
		case <-sub.Done():
			monitoring.SSEDisconnectsTotal.WithLabelValues("sse", "dropped").Inc()
			return ErrDropped
		case msg := <-sub.C():
			if err := writeFrame(w, flusher, "data: "+string(msg)+"\n\n"); err != nil {
				monitoring.SSEDisconnectsTotal.WithLabelValues("sse", "write_error").Inc()
				return err
			}
		case <-ticker.C:
			if err := writeFrame(w, flusher, ": heartbeat\n\n"); err != nil {
				monitoring.SSEDisconnectsTotal.WithLabelValues("sse", "write_error").Inc()
				return err
			}
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame string) error {
	if _, err := w.Write([]byte(frame)); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
