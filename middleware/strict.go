package middleware

import (
	"net/http"

	"github.com/MrEthical07/deskauth"
)

// RequireStrict re-confirms the credential's session on every request.
func RequireStrict(engine *deskauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeStrict)
}
