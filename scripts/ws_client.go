// Package main submits an async demo plan and follows its progress over the
// plan WebSocket until the run completes.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	planID := flag.String("plan", "", "follow an existing plan instead of submitting one")
	algo := flag.String("algo", "mpa", "algorithm for the submitted plan")
	budgetMs := flag.Int("budget-ms", 5000, "time budget for the submitted plan")
	tenant := flag.String("tenant", "t_demo", "tenant id (dev auth mode)")
	flag.Parse()

	if *planID == "" {
		id, err := submit(fmt.Sprintf("http://localhost:%s", port), *tenant, *algo, *budgetMs)
		if err != nil {
			log.Fatal(err)
		}
		*planID = id
	}
	log.Printf("Plan ID: %s", *planID)
	follow("localhost:"+port, *tenant, *planID)
}

// submit posts an async demo plan and returns its id.
func submit(base, tenant, algo string, budgetMs int) (string, error) {
	body, _ := json.Marshal(map[string]any{"async": true, "algorithm": algo, "orderCount": 24, "timeBudgetMs": budgetMs, "seed": 12345})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit plan: status %d", resp.StatusCode)
	}
	var acc struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return "", err
	}
	return acc.ID, nil
}

// follow prints plan events until the server completes the subscription.
func follow(host, tenant, planID string) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/v1/plans/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	hdr.Set("X-Role", "viewer")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]string{"planId": planID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Minute)
	for {
		_ = c.SetReadDeadline(deadline)
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Fatalf("read: %v", err)
		}
		switch m.Type {
		case "ping":
			_ = c.WriteJSON(wsMessage{Type: "pong"})
		case "complete":
			log.Printf("WS <- complete")
			return
		default:
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}
}
