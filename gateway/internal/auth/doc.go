// Package auth provides HTTP middleware for the gateway control plane.
//
// Middleware(cfg, next) applies two checks in order:
//
//   - Host: when allowed_hosts is set, the request Host (port stripped) must
//     match an entry. Entries may be exact names, "*.domain" wildcards or "*".
//     A mismatch returns 400.
//   - API key: when mode is "apikey" and the key resolves to a non-empty
//     value, the configured header must carry it. A missing or wrong key
//     returns 401.
//
// Mode "none", or "apikey" with an unset key, lets every request through.
package auth
