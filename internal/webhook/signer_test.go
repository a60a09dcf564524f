// internal/webhook/signer_test.go
//
// Unit-tests for payload signing and the backoff curve.

package webhook

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"table":"orders","action":"created"}`)
	sig := Sign("topsecret", payload)

	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature %q must carry the sha256= prefix", sig)
	}
	if !Verify("topsecret", payload, sig) {
		t.Fatal("round-trip verification failed")
	}
	if Verify("wrong", payload, sig) {
		t.Fatal("wrong secret must not verify")
	}
	if Verify("topsecret", []byte(`{"tampered":true}`), sig) {
		t.Fatal("tampered payload must not verify")
	}
}

func TestSign_DeterministicPerSecret(t *testing.T) {
	p := []byte("x")
	if Sign("a", p) != Sign("a", p) {
		t.Fatal("signing must be deterministic")
	}
	if Sign("a", p) == Sign("b", p) {
		t.Fatal("different secrets must produce different signatures")
	}
}

func TestBackoff(t *testing.T) {
	base := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{0, 30 * time.Second}, // clamped to the first step
	}
	for _, c := range cases {
		if got := Backoff(base, c.attempt); got != c.want {
			t.Errorf("Backoff(base, %d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestSubscribedTo(t *testing.T) {
	cases := []struct {
		events string
		event  string
		want   bool
	}{
		{`["orders.created"]`, "orders.created", true},
		{`["orders.created"]`, "orders.deleted", false},
		{`["*"]`, "anything.at.all", true},
		{`[]`, "orders.created", false},
		{`not json`, "orders.created", false},
	}
	for _, c := range cases {
		h := Webhook{ID: 1, Events: c.events}
		if got := h.SubscribedTo(c.event); got != c.want {
			t.Errorf("events %q, event %q: got %v, want %v", c.events, c.event, got, c.want)
		}
	}
}
