package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oshokin/escape-alarm/internal/logger"
)

// keepAliveInterval is how often an idle stream sends a comment line.
const keepAliveInterval = 30 * time.Second

// handleStream serves GET /api/alarm/stream. Every published snapshot is sent
// as a "snapshot" event; the current one goes first.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates, cancel := s.service.Subscribe()
	defer cancel()

	ctx := s.requestContext(r)
	logger.Debug(ctx, "Snapshot stream opened")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case snapshot, ok := <-updates:
			if !ok {
				_, _ = w.Write([]byte("event: closed\ndata: {}\n\n"))
				flusher.Flush()

				return
			}

			payload, err := json.Marshal(snapshot)
			if err != nil {
				logger.ErrorKV(ctx, "Failed to encode snapshot", "error", err)
				return
			}

			_, _ = w.Write([]byte("event: snapshot\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
