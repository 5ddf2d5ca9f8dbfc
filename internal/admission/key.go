package admission

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc derives the caller identity for a request.
type KeyFunc func(r *http.Request) string

// ClientKey returns a KeyFunc that identifies callers by network address.
// keyHeader, when set and present, takes precedence. X-Forwarded-For is only
// consulted when trustForwarded is true.
func ClientKey(keyHeader string, trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustForwarded {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		addr := strings.TrimSpace(r.RemoteAddr)
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		if addr != "" {
			return addr
		}
		return "unknown"
	}
}

// OperationKey namespaces a caller identity by operation name.
func OperationKey(caller, operation string) string {
	if operation == "" {
		return caller
	}
	return caller + ":" + operation
}
