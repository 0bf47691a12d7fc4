package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"morapack/internal/store"
)

const heartbeatEvery = 15 * time.Second

// streamPlanEvents serves a plan's progress as server-sent events until its
// terminal event or client disconnect.
func (s *Server) streamPlanEvents(w http.ResponseWriter, r *http.Request, tenant, id string) {
	if _, err := s.Store.GetPlan(r.Context(), tenant, id); err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	// read again after subscribing: a run that ended in between has no more
	// events to publish
	p, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Plan not found", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeHeartbeat(w, id)
	flusher.Flush()
	if p.Status != store.PlanRunning {
		writeEvent(w, finalEvent(p))
		flusher.Flush()
		return
	}

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
			if terminal(evt) {
				return
			}
		case <-ticker.C:
			writeHeartbeat(w, id)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt SSEEvent) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func writeHeartbeat(w http.ResponseWriter, id string) {
	writeEvent(w, SSEEvent{Type: "heartbeat", Data: map[string]any{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
}
