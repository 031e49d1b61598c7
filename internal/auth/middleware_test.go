package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func okHandler(t *testing.T, check func(r *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	secret := []byte("test-secret")
	mw := NewMiddleware(secret, NewDefaultPolicy(nil, nil))
	handler := mw.Wrap(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime/snapshot", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	mw := NewMiddleware([]byte("s"), NewDefaultPolicy([]string{"/healthz"}, []string{"/metrics"}))
	handler := mw.Wrap(okHandler(t, nil))
	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAuthMiddleware_ViewerForbiddenGenerate(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "viewer", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports/air-quality/generate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_OperatorForbiddenOrganizationUpdate(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "Operador", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/organization", nil)
	req.Header.Set("X-Token", token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}

func TestAuthMiddleware_InjectsIdentity(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-9", "admin", time.Hour)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler(t, func(r *http.Request) {
		ctx := r.Context()
		if SubjectFromContext(ctx) != "user-9" {
			t.Fatalf("unexpected subject %q", SubjectFromContext(ctx))
		}
		if DisplayNameFromContext(ctx) != "Ana Pérez" {
			t.Fatalf("unexpected name %q", DisplayNameFromContext(ctx))
		}
		if RoleFromContext(ctx) != RoleAdmin {
			t.Fatalf("unexpected role %q", RoleFromContext(ctx))
		}
		if TokenFromContext(ctx) != token {
			t.Fatalf("token not forwarded")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/realtime/stream?token="+token, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "admin", -time.Minute)
	handler := NewMiddleware(secret, NewDefaultPolicy(nil, nil)).Wrap(okHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/environments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized || !strings.Contains(resp.Body.String(), "expired") {
		t.Fatalf("expected 401 expired, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestIngestAuthMiddleware(t *testing.T) {
	secret := []byte("ingest-secret")
	mw := NewIngestAuthMiddleware(secret, time.Minute)
	handler := mw.Wrap(okHandler(t, nil))

	body := `{"channel":"doorsStatus","timestamp":"2024-05-01 10:00:00","sensor":{"o":true}}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/ingest", strings.NewReader(body))
	req.Header.Set(HeaderIngestTimestamp, ts)
	req.Header.Set(HeaderIngestSignature, SignIngest(secret, ts, []byte(body)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/realtime/ingest", strings.NewReader(body))
	req.Header.Set(HeaderIngestTimestamp, ts)
	req.Header.Set(HeaderIngestSignature, SignIngest([]byte("other"), ts, []byte(body)))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", resp.Code)
	}

	old := strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)
	if err := mw.Verify(http.Header{
		HeaderIngestTimestamp: []string{old},
		HeaderIngestSignature: []string{SignIngest(secret, old, []byte(body))},
	}, []byte(body)); err != ErrSignatureExpired {
		t.Fatalf("expected expired signature, got %v", err)
	}
}

func mustToken(t *testing.T, secret []byte, subject, role string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Name: "Ana Pérez",
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPolicyPeopleCounterNeedsOperator(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)
	role, ok := policy.RequiredRole(httptest.NewRequest(http.MethodPost, "/api/v1/realtime/people-counter", nil))
	if !ok || role != RoleOperator {
		t.Fatalf("expected operator, got %q %v", role, ok)
	}
	role, _ = policy.RequiredRole(httptest.NewRequest(http.MethodGet, "/api/v1/realtime/snapshot", nil))
	if role != RoleViewer {
		t.Fatalf("expected viewer for snapshot, got %q", role)
	}

	secret := []byte("test-secret")
	token := mustToken(t, secret, "user-1", "viewer", time.Hour)
	handler := NewMiddleware(secret, policy).Wrap(okHandler(t, nil))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/realtime/people-counter", strings.NewReader(`{"counter":"1"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
