// Package identity provides anonymous per-browser observer identity.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/attention-labs/internal/store"
)

const (
	ObserverCookieName = "attention_observer_id"
	observerCookieAge  = 30 * 24 * time.Hour
)

type contextKey int

const observerIDKey contextKey = iota

var observerIDPattern = regexp.MustCompile(`^obs_[a-f0-9]{32}$`)

// ObserverIDFromContext extracts the observer ID from the request context.
func ObserverIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(observerIDKey).(string); ok {
		return v
	}
	return ""
}

// WithObserverID returns a context carrying observerID.
func WithObserverID(ctx context.Context, observerID string) context.Context {
	return context.WithValue(ctx, observerIDKey, observerID)
}

func generateObserverID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate observer id: %w", err)
	}
	return "obs_" + hex.EncodeToString(buf), nil
}

// IsValidObserverID reports whether id has the shape of a generated ID.
func IsValidObserverID(id string) bool {
	return observerIDPattern.MatchString(id)
}

func setObserverCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     ObserverCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(observerCookieAge.Seconds()),
		Expires:  time.Now().Add(observerCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// getOrCreateObserverID returns the cookie's observer ID, minting a new one
// when the cookie is missing or malformed. The bool reports a new ID.
func getOrCreateObserverID(w http.ResponseWriter, r *http.Request, isDev bool) (string, bool, error) {
	if c, err := r.Cookie(ObserverCookieName); err == nil && IsValidObserverID(c.Value) {
		setObserverCookie(w, c.Value, isDev)
		return c.Value, false, nil
	}

	id, err := generateObserverID()
	if err != nil {
		return "", false, err
	}
	setObserverCookie(w, id, isDev)
	return id, true, nil
}

// Middleware injects the anonymous observer identity and records the
// observer as seen.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			observerID, created, err := getOrCreateObserverID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish observer identity"}`, http.StatusInternalServerError)
				return
			}

			if repo != nil {
				if err := repo.UpsertObserver(r.Context(), observerID, time.Now()); err != nil {
					http.Error(w, `{"error":"failed to record observer"}`, http.StatusInternalServerError)
					return
				}
			}
			if created {
				slog.Debug("[IDENTITY] New observer", "observer_id", observerID, "ip", IPFromRequest(r))
			}

			next.ServeHTTP(w, r.WithContext(WithObserverID(r.Context(), observerID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
