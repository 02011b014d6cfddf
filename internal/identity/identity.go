// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/talent-manual/internal/domain"
)

const (
	AnonCookieName        = "tm_anon_id"
	SessionHeaderName     = "X-Session-ID"
	DefaultSessionIDValue = "default"
	anonCookieMaxAge      = 30 * 24 * time.Hour

	// lastSeenGranularity limits last_seen writes to one per client per minute.
	lastSeenGranularity = time.Minute
)

type contextKey int

const (
	clientIDKey contextKey = iota
	sessionIDKey
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// ClientStore is the persistence the middleware needs.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	UpsertClient(ctx context.Context, client *domain.Client) error
	UpdateLastSeen(ctx context.Context, clientID string, lastSeen time.Time) error
}

// ClientIDFromContext extracts the client ID from the request context.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithIdentity returns a context carrying the given identity.
func WithIdentity(ctx context.Context, clientID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, clientIDKey, clientID)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func isValidAnonID(id string) bool {
	return anonIDPattern.MatchString(id)
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func ensureClient(ctx context.Context, repo ClientStore, clientID string, now time.Time) error {
	client, err := repo.GetClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return repo.UpsertClient(ctx, &domain.Client{
			ClientID:   clientID,
			LastSeenAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if client.Idle(now) < lastSeenGranularity {
		return nil
	}
	return repo.UpdateLastSeen(ctx, clientID, now)
}

func setAnonCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateAnonID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(AnonCookieName); err == nil && isValidAnonID(c.Value) {
		setAnonCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateAnonID()
	if err != nil {
		return "", err
	}
	setAnonCookie(w, id, isDev)
	return id, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the anonymous per-device identity and the per-tab
// session ID. The session ID may also come from the session_id query
// parameter, since browsers cannot set headers on websocket upgrades.
func Middleware(repo ClientStore, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := getOrCreateAnonID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish anonymous identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureClient(r.Context(), repo, clientID, time.Now()); err != nil {
				slog.Error("Failed to initialize anonymous client", "client_id", clientID, "error", err)
				http.Error(w, `{"error":"failed to initialize anonymous client"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithIdentity(r.Context(), clientID, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
