package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fdg312/meal-tracker/internal/clock"
	"github.com/fdg312/meal-tracker/internal/config"
	"github.com/fdg312/meal-tracker/internal/storage/memory"
	"github.com/fdg312/meal-tracker/internal/userctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func setupTestService(t *testing.T, authMode string) (*Service, *clock.Fixed, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		AuthMode:      authMode,
		JWTSecret:     "test-secret-key-for-testing-only",
		JWTIssuer:     "meal-tracker-test",
		JWTTTLMinutes: 60,
		AdminUsername: "admin",
		AdminPassword: "admin-secret",
	}
	clk := clock.AtDate("2025-03-10")
	service := NewService(cfg, memory.New(), clk, zap.NewNop())
	if err := service.EnsureAdmin(context.Background()); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	return service, clk, cfg
}

func postJSON(path string, v interface{}) *http.Request {
	body, _ := json.Marshal(v)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
}

func TestHandleAdminLogin(t *testing.T) {
	service, _, _ := setupTestService(t, config.AuthModeJWT)
	handler := NewHandlers(service, nil)

	t.Run("Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleAdminLogin(w, postJSON("/v1/auth/admin/login", AdminLoginRequest{Username: "admin", Password: "admin-secret"}))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
		}
		var resp TokenResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.AccessToken == "" {
			t.Error("expected access_token not empty")
		}
		if resp.TokenType != "Bearer" || resp.Role != userctx.RoleAdmin {
			t.Errorf("unexpected token response: %+v", resp)
		}
		if resp.ExpiresIn != int64(time.Hour.Seconds()) {
			t.Errorf("expected expires_in 3600, got %d", resp.ExpiresIn)
		}

		identity, err := service.VerifyJWT(resp.AccessToken)
		if err != nil {
			t.Fatalf("VerifyJWT: %v", err)
		}
		if identity.Subject != "admin" || identity.Role != userctx.RoleAdmin {
			t.Errorf("unexpected identity: %+v", identity)
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleAdminLogin(w, postJSON("/v1/auth/admin/login", AdminLoginRequest{Username: "admin", Password: "nope"}))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleAdminLogin(w, postJSON("/v1/auth/admin/login", AdminLoginRequest{Username: "root", Password: "admin-secret"}))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.HandleAdminLogin(w, postJSON("/v1/auth/admin/login", AdminLoginRequest{}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestEnsureAdminKeepsChangedPassword(t *testing.T) {
	service, _, _ := setupTestService(t, config.AuthModeJWT)
	ctx := context.Background()

	if err := service.ChangePassword(ctx, "admin", "admin-secret", "brand-new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if err := service.EnsureAdmin(ctx); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	if _, err := service.AdminLogin(ctx, "admin", "admin-secret"); err != ErrInvalidCredentials {
		t.Errorf("expected old password to be rejected, got %v", err)
	}
	if _, err := service.AdminLogin(ctx, "admin", "brand-new-pass"); err != nil {
		t.Errorf("expected new password to work, got %v", err)
	}
}

func TestHandleChangePassword(t *testing.T) {
	service, _, _ := setupTestService(t, config.AuthModeJWT)
	handler := NewHandlers(service, nil)
	adminCtx := userctx.WithIdentity(context.Background(), "admin", userctx.RoleAdmin)

	cases := []struct {
		name   string
		req    ChangePasswordRequest
		status int
	}{
		{"TooShort", ChangePasswordRequest{CurrentPassword: "admin-secret", NewPassword: "short"}, http.StatusBadRequest},
		{"WrongCurrent", ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "long-enough-pass"}, http.StatusForbidden},
		{"Success", ChangePasswordRequest{CurrentPassword: "admin-secret", NewPassword: "long-enough-pass"}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.HandleChangePassword(w, postJSON("/v1/admin/password", tc.req).WithContext(adminCtx))
			if w.Code != tc.status {
				t.Errorf("expected status %d, got %d. Body: %s", tc.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestVerifyJWT(t *testing.T) {
	service, clk, cfg := setupTestService(t, config.AuthModeJWT)

	t.Run("Expired", func(t *testing.T) {
		resp, err := service.IssueMemberToken(uuid.NewString())
		if err != nil {
			t.Fatal(err)
		}
		clk.Advance(2 * time.Hour)
		defer clk.Advance(-2 * time.Hour)

		if _, err := service.VerifyJWT(resp.AccessToken); err != ErrTokenExpired {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewService(&config.Config{JWTSecret: "other", JWTIssuer: cfg.JWTIssuer, JWTTTLMinutes: 60}, memory.New(), clk, zap.NewNop())
		resp, err := other.IssueToken("admin", userctx.RoleAdmin)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := service.VerifyJWT(resp.AccessToken); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("UnknownRole", func(t *testing.T) {
		token, err := service.generateJWTWithTTL("someone", "superuser", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := service.VerifyJWT(token); err != ErrInvalidToken {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}

func TestMiddlewareRoles(t *testing.T) {
	service, _, cfg := setupTestService(t, config.AuthModeJWT)
	middleware := NewMiddleware(cfg, service)

	adminToken, _ := service.IssueToken("admin", userctx.RoleAdmin)
	memberID := uuid.NewString()
	memberToken, _ := service.IssueMemberToken(memberID)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name   string
		wrap   func(http.Handler) http.Handler
		token  string
		status int
	}{
		{"AdminRouteWithAdmin", middleware.RequireAdmin, adminToken.AccessToken, http.StatusOK},
		{"AdminRouteWithMember", middleware.RequireAdmin, memberToken.AccessToken, http.StatusForbidden},
		{"AdminRouteAnonymous", middleware.RequireAdmin, "", http.StatusUnauthorized},
		{"MemberRouteWithMember", middleware.RequireMember, memberToken.AccessToken, http.StatusOK},
		{"MemberRouteWithAdmin", middleware.RequireMember, adminToken.AccessToken, http.StatusForbidden},
		{"MemberRouteAnonymous", middleware.RequireMember, "", http.StatusUnauthorized},
		{"InvalidToken", middleware.RequireMember, "invalid_token", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			middleware.Identify(tc.wrap(okHandler)).ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Errorf("expected status %d, got %d", tc.status, w.Code)
			}
		})
	}

	t.Run("MemberIdentityInContext", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
		req.Header.Set("Authorization", "Bearer "+memberToken.AccessToken)
		w := httptest.NewRecorder()

		var got string
		middleware.Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = userctx.GetMemberID(r.Context())
		})).ServeHTTP(w, req)

		if got != memberID {
			t.Errorf("expected member %s in context, got %q", memberID, got)
		}
	})

	t.Run("ProfileHeaderIgnoredInJWTMode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
		req.Header.Set(ProfileHeader, memberID)
		w := httptest.NewRecorder()
		middleware.Identify(middleware.RequireMember(okHandler)).ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", w.Code)
		}
	})
}

func TestMiddlewareNoAuthMode(t *testing.T) {
	service, _, cfg := setupTestService(t, config.AuthModeNone)
	middleware := NewMiddleware(cfg, service)
	memberID := uuid.NewString()

	t.Run("ProfileHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
		req.Header.Set(ProfileHeader, memberID)
		w := httptest.NewRecorder()

		var got string
		middleware.Identify(middleware.RequireMember(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = userctx.GetMemberID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))).ServeHTTP(w, req)

		if w.Code != http.StatusOK || got != memberID {
			t.Errorf("expected member %s with 200, got %q with %d", memberID, got, w.Code)
		}
	})

	t.Run("BadProfileHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/today", nil)
		req.Header.Set(ProfileHeader, "not-a-uuid")
		w := httptest.NewRecorder()
		middleware.Identify(http.NotFoundHandler()).ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("AdminStillNeedsToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)
		req.Header.Set(ProfileHeader, memberID)
		w := httptest.NewRecorder()
		middleware.Identify(middleware.RequireAdmin(http.NotFoundHandler())).ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected status 403, got %d", w.Code)
		}
	})
}
