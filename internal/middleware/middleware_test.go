package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xelth-com/eckbackoffice/internal/database/dbtest"
	"github.com/xelth-com/eckbackoffice/internal/services/access"
	"github.com/xelth-com/eckbackoffice/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const secret = "test-secret"

func TestAuthMiddleware(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "alice", access.ViewTiers)
	auth := NewAuth(secret, db.DB, nil)

	var seen access.Actor
	h := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, refresh, err := utils.GenerateTokens(user.ID, user.Username, secret)
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token " + token, http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}

	if seen.UserID != user.ID || !seen.Can(access.ViewTiers) {
		t.Errorf("Unexpected actor in context %+v", seen)
	}
}

func TestAuthRejectsInactiveUser(t *testing.T) {
	db := dbtest.Open(t)
	user := dbtest.CreateUser(t, db, "bob")
	if err := db.Model(user).Update("is_active", false).Error; err != nil {
		t.Fatalf("Failed to deactivate user: %v", err)
	}
	token, _, _ := utils.GenerateTokens(user.ID, user.Username, secret)

	if _, err := NewAuth(secret, db.DB, nil).UserFromToken(t.Context(), token); err == nil {
		t.Error("Expected inactive user to be rejected")
	}
}

func TestRequirePermission(t *testing.T) {
	h := RequirePermission(access.ManageTiers)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without actor, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := req.Context()
	ctx = WithActor(ctx, access.Actor{UserID: 1, Permissions: access.NewPermissions(access.ManageTiers)})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 with permission, got %d", rec.Code)
	}
}

func TestRequireAnyPermission(t *testing.T) {
	h := RequireAnyPermission(access.ViewTiers, access.ManageTraites)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(perms ...string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), access.Actor{UserID: 1, Permissions: access.NewPermissions(perms...)}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve(access.ManageTraites); code != http.StatusOK {
		t.Errorf("Expected 200 with manage_traites only, got %d", code)
	}
	if code := serve(access.ViewTiers); code != http.StatusOK {
		t.Errorf("Expected 200 with view_tiers only, got %d", code)
	}
	if code := serve(access.ManageTiers); code != http.StatusForbidden {
		t.Errorf("Expected 403 without either token, got %d", code)
	}
}

func TestRateLimiterBlocks(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(rate.Every(time.Second), 2, time.Minute)
	rl.now = func() time.Time { return now }
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after burst, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusOK {
		t.Errorf("Other IPs must not be affected, got %d", code)
	}

	now = now.Add(30 * time.Second)
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("Expected block to hold, got %d", code)
	}
	now = now.Add(31 * time.Second)
	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Errorf("Expected block to expire, got %d", code)
	}
}

func TestRateLimiterEvictsIdleIPs(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(rate.Every(time.Second), 1, time.Hour)
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	now = now.Add(idleTTL / 2)
	rl.allow("10.0.0.2")
	rl.allow("10.0.0.3")
	rl.allow("10.0.0.3") // blocked

	now = now.Add(idleTTL/2 + time.Second)
	rl.cleanup()

	if _, ok := rl.ips["10.0.0.1"]; ok {
		t.Error("Idle IP should be evicted")
	}
	if _, ok := rl.ips["10.0.0.2"]; !ok {
		t.Error("Recently seen IP should be kept")
	}
	if _, ok := rl.ips["10.0.0.3"]; !ok {
		t.Error("Blocked IP should keep its limiter until the block expires")
	}
}

func TestRequestLoggerSetsID(t *testing.T) {
	h := RequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("Expected status to pass through, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "given-id" {
		t.Errorf("Expected incoming id to be kept, got %q", got)
	}
}
