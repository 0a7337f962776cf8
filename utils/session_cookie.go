package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

// CookiePolicy controls how the session cookie is issued.
// Production sets Secure and SameSite=Strict; elsewhere Lax keeps cross-origin testing possible.
type CookiePolicy struct {
	Secure   bool
	SameSite http.SameSite
}

// NewCookiePolicy derives the cookie policy from the deployment mode.
func NewCookiePolicy(production bool) CookiePolicy {
	if production {
		return CookiePolicy{Secure: true, SameSite: http.SameSiteStrictMode}
	}
	return CookiePolicy{Secure: false, SameSite: http.SameSiteLaxMode}
}

// SetSessionCookie stores token in an HTTP-only cookie that lives as long as the token.
func (p CookiePolicy) SetSessionCookie(ctx *gin.Context, token string, ttl time.Duration) {
	ctx.SetSameSite(p.SameSite)
	ctx.SetCookie(SessionCookieName, token, int(ttl.Seconds()), "/", "", p.Secure, true)
}

// ClearSessionCookie expires the session cookie on the client.
func (p CookiePolicy) ClearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(p.SameSite)
	ctx.SetCookie(SessionCookieName, "", -1, "/", "", p.Secure, true)
}
