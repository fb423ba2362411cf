package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/safepass/internal/common"
)

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteStrictMode
	}
}

func (s *Server) sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.opts.CookieDomain,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: parseSameSite(s.opts.CookieSameSite),
		MaxAge:   int(s.opts.SessionTTL / time.Second),
	}
}

// clearSessionCookie must carry the same attributes as sessionCookie or the
// browser keeps the original.
func (s *Server) clearSessionCookie() *http.Cookie {
	c := s.sessionCookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	return c
}
