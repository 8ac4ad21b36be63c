package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mmeshcher/ganadera-system/internal/model"
)

func TestAuthMiddleware_TokenRoundTrip(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	var gotID int64
	var gotRole model.Role

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserIDFromContext(r.Context())
		gotRole, _ = GetRoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token(42, model.RoleVendedor))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
	if gotID != 42 || gotRole != model.RoleVendedor {
		t.Fatalf("context identity = %d/%s, want 42/vendedor", gotID, gotRole)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "malformed token", header: "Bearer not-a-token"},
		{name: "foreign signature", header: "Bearer " + other.Token(42, model.RoleComprador)},
		{name: "unknown role", header: "Bearer " + forgeToken(auth, "42.auditor")},
	}

	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/offers", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status %d, want 401", w.Code)
			}
		})
	}
}

// forgeToken подписывает произвольную полезную нагрузку действующим ключом.
func forgeToken(a *AuthMiddleware, payload string) string {
	return payload + "." + a.sign(payload)
}

func TestRequireRole(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	protected := auth.Middleware(auth.RequireRole(model.RoleBanco)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	tests := []struct {
		name string
		role model.Role
		want int
	}{
		{name: "allowed role", role: model.RoleBanco, want: http.StatusOK},
		{name: "admin always passes", role: model.RoleAdmin, want: http.StatusOK},
		{name: "other role", role: model.RoleComprador, want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/payment-orders/1/process", nil)
			req.Header.Set("Authorization", "Bearer "+auth.Token(7, tt.role))

			w := httptest.NewRecorder()
			protected.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAuthMiddleware_TokenShape(t *testing.T) {
	auth := NewAuthMiddleware("test-secret")

	token := auth.Token(1, model.RoleComprador)
	if !strings.HasPrefix(token, "1.comprador.") {
		t.Fatalf("unexpected token shape: %s", token)
	}
}
