package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"morapack/internal/store"
)

// Plan progress over WebSocket, framed like graphql-transport-ws:
// connection_init, subscribe{planId}, next, error, complete.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	PlanID string `json:"planId"`
}

// PlanWSHandler handles /v1/plans/ws
func (s *Server) PlanWSHandler(w http.ResponseWriter, r *http.Request) {
	pr, ok := s.principal(w, r, anyRole)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// gorilla allows one concurrent writer
	var wmu sync.Mutex
	write := func(v wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}
	fail := func(id, msg string) {
		b, _ := json.Marshal(map[string]string{"message": msg})
		_ = write(wsMessage{Type: "error", ID: id, Payload: b})
		_ = write(wsMessage{Type: "complete", ID: id})
	}

	type sub struct {
		planID string
		ch     chan SSEEvent
	}
	var smu sync.Mutex
	subs := map[string]sub{}
	// drop reports whether it removed the subscription
	drop := func(id string) bool {
		smu.Lock()
		s0, ok := subs[id]
		delete(subs, id)
		smu.Unlock()
		if ok {
			s.Broker.Unsubscribe(s0.planID, s0.ch)
		}
		return ok
	}
	done := make(chan struct{})
	defer func() {
		close(done)
		smu.Lock()
		ids := make([]string, 0, len(subs))
		for id := range subs {
			ids = append(ids, id)
		}
		smu.Unlock()
		for _, id := range ids {
			drop(id)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if write(wsMessage{Type: "ping"}) != nil {
							return
						}
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			var pl subscribePayload
			_ = json.Unmarshal(msg.Payload, &pl)
			if pl.PlanID == "" {
				fail(msg.ID, "planId required")
				continue
			}
			smu.Lock()
			_, dup := subs[msg.ID]
			smu.Unlock()
			if dup {
				fail(msg.ID, "subscription id in use")
				continue
			}
			if _, err := s.Store.GetPlan(r.Context(), pr.Tenant, pl.PlanID); err != nil {
				fail(msg.ID, "plan not found")
				continue
			}
			ch := s.Broker.Subscribe(pl.PlanID)
			p, err := s.Store.GetPlan(r.Context(), pr.Tenant, pl.PlanID)
			if err != nil {
				s.Broker.Unsubscribe(pl.PlanID, ch)
				fail(msg.ID, "plan not found")
				continue
			}
			if p.Status != store.PlanRunning {
				s.Broker.Unsubscribe(pl.PlanID, ch)
				_ = write(nextMessage(msg.ID, finalEvent(p)))
				_ = write(wsMessage{Type: "complete", ID: msg.ID})
				continue
			}
			smu.Lock()
			subs[msg.ID] = sub{planID: pl.PlanID, ch: ch}
			smu.Unlock()
			go func(id string, c chan SSEEvent) {
				for evt := range c {
					_ = write(nextMessage(id, evt))
					if terminal(evt) {
						break
					}
				}
				if drop(id) {
					_ = write(wsMessage{Type: "complete", ID: id})
				}
			}(msg.ID, ch)
		case "complete":
			drop(msg.ID)
		}
	}
}

func nextMessage(id string, evt SSEEvent) wsMessage {
	payload, _ := json.Marshal(map[string]any{"data": map[string]any{"planEvents": map[string]any{"type": evt.Type, "data": evt.Data}}})
	return wsMessage{Type: "next", ID: id, Payload: payload}
}
