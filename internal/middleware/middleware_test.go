package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-grading/internal/model"
	"github.com/stemsi/exstem-grading/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, auth *service.AuthService, userID int, role model.Role, perms ...model.Permission) string {
	t.Helper()
	codes := make([]string, len(perms))
	for i, p := range perms {
		codes[i] = string(p)
	}
	tok, err := auth.GenerateToken(userID, role, codes)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

func do(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoleMiddleware(t *testing.T) {
	auth := service.NewAuthService("test-secret", time.Hour)
	r := gin.New()
	ok := func(c *gin.Context) { c.String(http.StatusOK, "%d", GetClaims(c).UserID) }
	r.GET("/candidate", RequireCandidateJWT(auth), ok)
	r.GET("/admin", RequireAdminJWT(auth), ok)
	r.GET("/publish", RequireAdminJWT(auth), RequirePermission(model.PermissionResultsPublish), ok)

	candidate := token(t, auth, 7, model.RoleCandidate)
	admin := token(t, auth, 1, model.RoleAdmin, model.PermissionResultsRead)
	publisher := token(t, auth, 2, model.RoleAdmin, model.PermissionResultsPublish)

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{name: "missing token", path: "/candidate", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/candidate", bearer: "nope", want: http.StatusUnauthorized},
		{name: "candidate on candidate route", path: "/candidate", bearer: candidate, want: http.StatusOK},
		{name: "admin on candidate route", path: "/candidate", bearer: admin, want: http.StatusForbidden},
		{name: "candidate on admin route", path: "/admin", bearer: candidate, want: http.StatusForbidden},
		{name: "admin without permission", path: "/publish", bearer: admin, want: http.StatusForbidden},
		{name: "admin with permission", path: "/publish", bearer: publisher, want: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(r, tc.path, tc.bearer); w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequireCandidateJWT_QueryFallback(t *testing.T) {
	auth := service.NewAuthService("test-secret", time.Hour)
	r := gin.New()
	r.GET("/stream", RequireCandidateJWT(auth), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := do(r, "/stream?token="+token(t, auth, 3, model.RoleCandidate), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.allow("user:1") || !rl.allow("user:1") {
		t.Fatal("expected first two requests allowed")
	}
	if rl.allow("user:1") {
		t.Fatal("expected third request limited")
	}
	if !rl.allow("user:2") {
		t.Fatal("expected other user unaffected")
	}

	now = now.Add(time.Minute)
	if !rl.allow("user:1") {
		t.Fatal("expected refill after interval")
	}

	now = now.Add(10 * time.Minute)
	rl.cleanup()
	if len(rl.visitors) != 0 {
		t.Fatalf("expected stale visitors evicted, got %d", len(rl.visitors))
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	auth := service.NewAuthService("test-secret", time.Hour)
	rl := NewRateLimiter(1, time.Minute)
	r := gin.New()
	r.GET("/x", RequireCandidateJWT(auth), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	tok := token(t, auth, 9, model.RoleCandidate)
	if w := do(r, "/x", tok); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := do(r, "/x", tok); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}
