package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginProtection_AccountLockout(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})

	email := "victim@example.com"

	if locked, _ := lp.IsAccountLocked(email); locked {
		t.Fatal("account should not start locked")
	}

	// Two failures: not locked yet.
	for i := 0; i < 2; i++ {
		if locked, _ := lp.RecordFailedAttempt(email); locked {
			t.Fatalf("account locked after %d attempts, want 3", i+1)
		}
	}

	// Third failure locks.
	locked, duration := lp.RecordFailedAttempt(email)
	if !locked {
		t.Fatal("account should lock on third failed attempt")
	}
	if duration != time.Minute {
		t.Errorf("lock duration = %v, want %v", duration, time.Minute)
	}

	if locked, remaining := lp.IsAccountLocked(email); !locked || remaining <= 0 {
		t.Error("IsAccountLocked should report an active lock with remaining time")
	}
}

func TestLoginProtection_ExponentialBackoff(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		MaxFailedAttempts: 1,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Hour,
	})

	email := "repeat@example.com"

	// First lockout is the base duration. The attempt map entry persists,
	// so the second lockout doubles.
	lp.attempts[email] = &loginAttempt{count: 0, firstFailed: time.Now()}

	if _, d := lp.RecordFailedAttempt(email); d != time.Minute {
		t.Errorf("first lockout = %v, want %v", d, time.Minute)
	}
	if _, d := lp.RecordFailedAttempt(email); d != 2*time.Minute {
		t.Errorf("second lockout = %v, want %v", d, 2*time.Minute)
	}
}

func TestLoginProtection_SuccessClearsAttempts(t *testing.T) {
	lp := NewLoginProtection(DefaultLoginProtectionConfig())

	email := "lucky@example.com"
	lp.RecordFailedAttempt(email)
	lp.RecordFailedAttempt(email)
	lp.RecordSuccessfulLogin(email)

	lp.mu.Lock()
	_, exists := lp.attempts[email]
	lp.mu.Unlock()
	if exists {
		t.Error("successful login should clear failed attempt tracking")
	}
}

func TestLoginProtection_IPRateLimit(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		IPRateLimit: 1,
		IPBurst:     2,
	})

	handler := lp.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/login", nil)
		r.RemoteAddr = "10.0.0.1:54321"
		return r
	}

	// Burst of 2 allowed.
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newReq())
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	// Third immediate request is limited.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq())
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	// A different IP has its own limiter.
	other := httptest.NewRequest(http.MethodPost, "/login", nil)
	other.RemoteAddr = "10.0.0.2:54321"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, other)
	if rec2.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want %d", rec2.Code, http.StatusOK)
	}
}

func TestLoginProtection_CleanupStaleEntries(t *testing.T) {
	lp := NewLoginProtection(LoginProtectionConfig{
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})

	now := time.Now()
	lp.mu.Lock()
	// Out of window, lock expired: removable.
	lp.attempts["stale@example.com"] = &loginAttempt{
		count:       2,
		firstFailed: now.Add(-2 * time.Minute),
	}
	// Recent failures: kept.
	lp.attempts["recent@example.com"] = &loginAttempt{
		count:       2,
		firstFailed: now,
	}
	// Out of window but still locked: kept until the lock expires.
	lp.attempts["locked@example.com"] = &loginAttempt{
		firstFailed: now.Add(-2 * time.Minute),
		lockedUntil: now.Add(time.Minute),
	}
	lp.mu.Unlock()

	lp.cleanupStaleEntries()

	lp.mu.Lock()
	defer lp.mu.Unlock()
	if _, exists := lp.attempts["stale@example.com"]; exists {
		t.Error("stale attempt entry should be removed")
	}
	if _, exists := lp.attempts["recent@example.com"]; !exists {
		t.Error("recent attempt entry should be kept")
	}
	if _, exists := lp.attempts["locked@example.com"]; !exists {
		t.Error("locked attempt entry should be kept while the lock holds")
	}
}

func TestLoginProtection_CleanupClearsOversizedLimiterMap(t *testing.T) {
	lp := NewLoginProtection(DefaultLoginProtectionConfig())

	for i := 0; i <= ipLimiterCap; i++ {
		lp.limiterFor(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
	}

	lp.cleanupStaleEntries()

	lp.mu.Lock()
	size := len(lp.ipLimiters)
	lp.mu.Unlock()
	if size != 0 {
		t.Errorf("limiter map size = %d after cleanup, want 0", size)
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:12345"
	if got := clientIP(r); got != "192.168.1.5" {
		t.Errorf("clientIP = %q, want %q", got, "192.168.1.5")
	}

	r.RemoteAddr = "no-port"
	if got := clientIP(r); got != "no-port" {
		t.Errorf("clientIP = %q, want %q", got, "no-port")
	}
}
