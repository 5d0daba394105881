package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/rewardledger/internal/auth"
)

// AccountHeader carries the chat-platform account id the transport acts for.
const AccountHeader = "X-Account-ID"

// Identify reads the caller's account id and populates AuthContext.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(AccountHeader))
		if id == "" {
			http.Error(w, "Missing "+AccountHeader, http.StatusUnauthorized)
			return
		}

		ac, _ := auth.FromContext(r.Context())
		ac.AccountID = id
		ctx := auth.WithAuth(r.Context(), ac)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdminToken checks the bearer token against a bcrypt hash and marks
// the caller as holding the admin token. An empty hash disables admin access.
// The facade still checks the caller's account id against its admin policy.
func RequireAdminToken(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if hash == "" || !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			ac, _ := auth.FromContext(r.Context())
			ac.Admin = true
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin checks that an earlier middleware granted admin access.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// AccountKey keys rate limits by account id, falling back to the client IP.
func AccountKey(r *http.Request) string {
	if id := auth.AccountID(r.Context()); id != "" {
		return "account:" + id
	}
	return "ip:" + RealIP(r)
}
