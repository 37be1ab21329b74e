// Package clientip extracts the real client IP behind the edge proxies we
// deploy on, and builds a spoof-resistant rate limit key.
package clientip

import (
	"context"
	"net/http"
	"sort"
	"strings"
)

type contextKey struct{}

var clientIPKey = contextKey{}

// Info is the extracted client IP information for one request
type Info struct {
	// Primary is the most trusted single IP, for logging and display
	Primary string

	// RateLimitKey is a composite of every IP seen on the request. Header
	// spoofing can add IPs but cannot remove RemoteAddr from the key, so a
	// spoofer still burns their own bucket.
	RateLimitKey string
}

// headerPriority lists trusted client IP headers, most trusted first.
// Fly-Client-IP is set by the Fly.io edge and cannot be spoofed there;
// X-Real-IP covers an nginx hop; X-Forwarded-For is partially trusted
// (first entry only).
var headerPriority = []string{"Fly-Client-IP", "X-Real-IP"}

// Middleware extracts client IPs, rewrites r.RemoteAddr to the primary IP,
// and stores Info in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := extract(r)
		r.RemoteAddr = info.Primary
		ctx := context.WithValue(r.Context(), clientIPKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext retrieves Info from context, zero Info when absent
func FromContext(ctx context.Context) Info {
	if info, ok := ctx.Value(clientIPKey).(Info); ok {
		return info
	}
	return Info{}
}

// FromRequest is a convenience wrapper around FromContext
func FromRequest(r *http.Request) Info {
	return FromContext(r.Context())
}

func extract(r *http.Request) Info {
	allIPs := make(map[string]bool)

	// The TCP peer address is always part of the key
	remoteIP := stripPort(r.RemoteAddr)
	if remoteIP != "" {
		allIPs[remoteIP] = true
	}

	var primary string
	for _, header := range headerPriority {
		if ip := strings.TrimSpace(r.Header.Get(header)); ip != "" {
			allIPs[ip] = true
			if primary == "" {
				primary = ip
			}
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if ip := strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0]); ip != "" {
			allIPs[ip] = true
			if primary == "" {
				primary = ip
			}
		}
	}

	if primary == "" {
		primary = remoteIP
	}

	ipList := make([]string, 0, len(allIPs))
	for ip := range allIPs {
		ipList = append(ipList, ip)
	}
	sort.Strings(ipList)

	return Info{
		Primary:      primary,
		RateLimitKey: strings.Join(ipList, "|"),
	}
}

// stripPort removes the port from "IP:port" and "[IPv6]:port" forms
func stripPort(addr string) string {
	if addr == "" {
		return ""
	}

	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx != -1 {
			return strings.Trim(addr[:idx+1], "[]")
		}
		return strings.Trim(addr, "[]")
	}

	if strings.Count(addr, ":") == 1 {
		return addr[:strings.LastIndex(addr, ":")]
	}

	return addr
}
