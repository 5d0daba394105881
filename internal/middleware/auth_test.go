package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/rewardledger/internal/auth"
)

func tokenHash(t *testing.T, token string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return string(h)
}

func TestIdentifyMissingHeader(t *testing.T) {
	handler := Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestIdentifySetsAccount(t *testing.T) {
	var got auth.AuthContext
	handler := Identify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		got = ac
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(AccountHeader, " 1001 ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got.AccountID != "1001" {
		t.Errorf("AccountID = %q, want %q", got.AccountID, "1001")
	}
	if got.Admin {
		t.Error("Admin = true, want false")
	}
}

func TestRequireAdminToken(t *testing.T) {
	hash := tokenHash(t, "s3cret")

	tests := []struct {
		name   string
		hash   string
		header string
		want   int
	}{
		{"valid", hash, "Bearer s3cret", http.StatusOK},
		{"wrong token", hash, "Bearer nope", http.StatusForbidden},
		{"missing header", hash, "", http.StatusUnauthorized},
		{"not bearer", hash, "Basic s3cret", http.StatusUnauthorized},
		{"disabled", "", "Bearer s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdminToken(tt.hash)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdminForbidden(t *testing.T) {
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{AccountID: "7"})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func TestAccountKey(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := AccountKey(req); got != "ip:10.0.0.9" {
		t.Errorf("AccountKey = %q, want %q", got, "ip:10.0.0.9")
	}

	req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{AccountID: "42"}))
	if got := AccountKey(req); got != "account:42" {
		t.Errorf("AccountKey = %q, want %q", got, "account:42")
	}
}
