package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/deskauth"
)

// RefreshedHeader carries a re-signed credential after a refresh point.
const RefreshedHeader = "X-Refreshed-Authorization"

// Mode selects how often a credential is re-confirmed.
type Mode uint8

const (
	ModeRefreshPoint Mode = iota
	ModeStrict
)

type authContextKey struct{}

// AuthFromContext returns the AuthContext stored by Guard.
func AuthFromContext(ctx context.Context) (*deskauth.AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(*deskauth.AuthContext)
	return auth, ok && auth != nil
}

func Guard(engine *deskauth.Engine, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, deskauth.ErrSessionInvalid)
				return
			}

			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, deskauth.ErrSessionInvalid)
				return
			}

			claims, err := engine.ParseBearer(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			ctx := withClient(r)
			auth := engine.AuthFromClaims(claims)

			if mode == ModeStrict || engine.NeedsRevalidation(claims) {
				rv, err := engine.Revalidate(ctx, claims)
				if err != nil {
					status := http.StatusUnauthorized
					if unverified(rv, err) {
						status = http.StatusServiceUnavailable
					}
					writeError(w, status, err)
					return
				}
				auth = rv.Auth
				if rv.Bearer != "" {
					w.Header().Set(RefreshedHeader, "Bearer "+rv.Bearer)
				}
			}

			ctx = context.WithValue(ctx, authContextKey{}, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unverified(rv *deskauth.Revalidation, err error) bool {
	if rv != nil && rv.Result.Outcome == deskauth.OutcomeUnverified {
		return true
	}
	return errors.Is(err, deskauth.ErrTransientStore)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	return token, token != ""
}

func withClient(r *http.Request) context.Context {
	ctx := r.Context()
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = deskauth.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = deskauth.WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = deskauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	http.Error(w, deskauth.PublicMessage(err), status)
}
