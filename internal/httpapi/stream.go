package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Yuzori/l-Agence/internal/agency"
	"github.com/Yuzori/l-Agence/internal/logger"
)

// handleStream serves the realtime feed as server-sent events. Clients
// resume with either the standard Last-Event-ID header or a ?cursor=
// query parameter; cursor 0 replays the whole retained ring.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	agent := strings.TrimSpace(mux.Vars(r)["agent"])
	if agent == "" {
		writeError(w, agency.NewInvalidInputError("agent name is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	cursor := int64(0)
	if raw := strings.TrimSpace(r.Header.Get("Last-Event-ID")); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cursor = v
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cursor = v
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.hub.Connect(agent)
	defer s.hub.Disconnect(agent)
	logger.Info("stream_open", "agent", agent, "cursor", cursor)

	// Open the stream immediately so EventSource fires onopen.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ctx := r.Context()
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stream_closed", "agent", agent)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		default:
		}

		events, last := s.hub.Since(cursor, agent, time.Second)
		cursor = last
		for _, evt := range events {
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Error("stream_encode_failed", "agent", agent, "event", evt.Name, "error", err)
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.ID, evt.Name, data)
		}
		if len(events) > 0 {
			flusher.Flush()
		}
	}
}
