package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/catalogimport/internal/config"
)

// BasicAuth returns middleware that checks the Authorization header against
// the configured login=password pairs.
//
// A missing header yields 401 with a Basic challenge. A header that is not
// valid Basic credentials, or credentials that do not match, yield 403.
// If auth is disabled all requests pass through.
func BasicAuth(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	creds := cfg.CredentialMap()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if r.Header.Get("Authorization") == "" {
				slog.Warn("auth: missing credentials",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", `Basic realm="catalog"`)
				writeAuthError(w, http.StatusUnauthorized, "Unauthorized", "AUTH_MISSING")
				return
			}

			login, password, ok := r.BasicAuth()
			if !ok || !validCredentials(login, password, creds) {
				slog.Warn("auth: access denied",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"login", login,
				)
				writeAuthError(w, http.StatusForbidden, "Forbidden", "AUTH_DENIED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validCredentials compares against every configured pair in constant time
// so response timing does not reveal which logins exist.
func validCredentials(login, password string, creds map[string]string) bool {
	valid := 0
	for l, p := range creds {
		loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(l))
		passOK := subtle.ConstantTimeCompare([]byte(password), []byte(p))
		valid |= loginOK & passOK
	}
	return valid == 1
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"message":"` + message + `","code":"` + code + `"}`))
}
