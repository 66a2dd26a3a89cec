package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 20; i++ {
		if !limiter.Allow("registry") {
			t.Fatalf("call %d should pass with limiting disabled", i)
		}
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://abr.example.gov.au/lookup?abn=1"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.Allow("openai")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx, "openai"); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	if err := limiter.WaitWithDelay(context.Background(), "ollama", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms, got %v", d)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("https://abr.example.gov.au/a") {
		t.Error("first call should pass")
	}
	// same host, different path
	if limiter.Allow("https://abr.example.gov.au/b") {
		t.Error("expected second call on the same host to be limited")
	}
	if !limiter.Allow("anthropic") {
		t.Error("expected other key to pass")
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRate("https://slow.example", 0.1, 1)

	if !limiter.Allow("https://slow.example/x") {
		t.Errorf("first request should pass")
	}
	if limiter.Allow("https://slow.example/y") {
		t.Errorf("second request should fail")
	}
	if !limiter.Allow("https://fast.example") {
		t.Errorf("other host should pass")
	}
}

func TestKeyOf(t *testing.T) {
	tests := map[string]string{
		"http://example.com/foo": "example.com",
		"openai":                 "openai",
		"::invalid":              "::invalid",
	}
	for in, want := range tests {
		if got := KeyOf(in); got != want {
			t.Errorf("KeyOf(%q) = %q, want %q", in, got, want)
		}
	}
}
