package wire

import (
	"net/http"
	"net/url"
	"strings"
)

// defaultAllowedSchemes are accepted regardless of an explicit allowlist:
// the Tauri desktop shell's custom scheme, and an absent Origin header
// (same-process / non-browser clients never send one).
var defaultAllowedSchemes = []string{"tauri:"}

// OriginAllowlist validates WebSocket upgrade requests against the
// allowlist named in spec §6: tauri://..., http(s)://localhost[:port],
// http(s)://127.0.0.1[:port], the literal string "null", or an absent
// Origin header. Adapted from the teacher's Server.checkOrigin
// (internal/ws/server.go), generalized from a single-deployment
// same-host check into this spec's fixed allowlist.
type OriginAllowlist struct {
	extra map[string]bool
}

// NewOriginAllowlist builds an allowlist with additional operator-
// configured exact-origin strings layered on top of the spec defaults.
func NewOriginAllowlist(extraOrigins []string) *OriginAllowlist {
	a := &OriginAllowlist{extra: make(map[string]bool, len(extraOrigins))}
	for _, o := range extraOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			a.extra[o] = true
		}
	}
	return a
}

// Allowed reports whether origin passes the allowlist.
func (a *OriginAllowlist) Allowed(origin string) bool {
	if origin == "" || origin == "null" {
		return true
	}
	if a.extra[origin] {
		return true
	}
	for _, scheme := range defaultAllowedSchemes {
		if strings.HasPrefix(origin, scheme) {
			return true
		}
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// CheckOrigin adapts Allowed to gorilla/websocket's Upgrader.CheckOrigin
// signature.
func (a *OriginAllowlist) CheckOrigin(r *http.Request) bool {
	return a.Allowed(r.Header.Get("Origin"))
}
