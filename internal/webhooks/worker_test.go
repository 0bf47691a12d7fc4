package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"morapack/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	pub := NewPublisher(rs, srv.URL, "secret")
	id, err := pub.Emit(context.Background(), "t1", "plan.completed", map[string]any{"planId": "p1"})
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}
	w := &Worker{Store: rs, HTTP: srv.Client(), MaxAttempts: 3}
	w.processOnce(context.Background())

	if gotSig == "" || gotType != "plan.completed" {
		t.Fatalf("missing signature/type headers: sig=%q type=%q", gotSig, gotType)
	}
	if gotBody.Type != "plan.completed" || gotBody.TenantID != "t1" {
		t.Fatalf("body: %+v", gotBody)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success || rs.marks[0].Code != 200 {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), MaxAttempts: 1}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "plan.completed", srv.URL, "", []byte(`{}`))
	w.processOnce(context.Background())
	if len(rs.fails) != 1 || rs.fails[0].Code != 500 {
		t.Fatalf("expected fail recorded, got %+v", rs.fails)
	}

	rs = &recordStore{Memory: store.NewMemory()}
	w = &Worker{Store: rs, HTTP: srv.Client(), MaxAttempts: 3}
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "plan.completed", srv.URL, "", []byte(`{}`))
	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].LastErr == "" {
		t.Fatalf("expected retry mark, got %+v", rs.marks)
	}
	// rescheduled into the future, so nothing is due now
	w.processOnce(context.Background())
	if len(rs.marks) != 1 {
		t.Fatalf("retry should wait for backoff, marks=%d", len(rs.marks))
	}
}

func TestPublisherDisabledWithoutURL(t *testing.T) {
	rs := store.NewMemory()
	id, err := NewPublisher(rs, "", "").Emit(context.Background(), "t1", "plan.completed", nil)
	if err != nil || id != "" {
		t.Fatalf("disabled publisher: id=%q err=%v", id, err)
	}
	due, _ := rs.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("nothing should be queued")
	}
}

func TestNextBackoff(t *testing.T) {
	cases := map[int]time.Duration{-1: time.Second, 0: time.Second, 3: 8 * time.Second, 10: 1024 * time.Second, 40: 1024 * time.Second}
	for n, want := range cases {
		if got := nextBackoff(n); got != want {
			t.Fatalf("nextBackoff(%d)=%s want %s", n, got, want)
		}
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := SignHMAC("k", body)
	if !VerifyHMAC("k", body, sig) || VerifyHMAC("other", body, sig) || VerifyHMAC("k", body, "zz") {
		t.Fatal("signature verification mismatch")
	}
}
