package clientip

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected string
	}{
		{"IPv4 with port", "192.168.1.100:12345", "192.168.1.100"},
		{"IPv4 without port", "192.168.1.100", "192.168.1.100"},
		{"IPv6 with port", "[2001:db8::1]:8080", "2001:db8::1"},
		{"IPv6 without port", "2001:db8::1", "2001:db8::1"},
		{"IPv6 with brackets no port", "[2001:db8::1]", "2001:db8::1"},
		{"empty string", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stripPort(tt.addr)
			if result != tt.expected {
				t.Errorf("stripPort(%q) = %q, want %q", tt.addr, result, tt.expected)
			}
		})
	}
}

func TestExtract_Primary(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "Fly-Client-IP takes highest priority",
			remoteAddr: "172.16.29.234:54686",
			headers: map[string]string{
				"Fly-Client-IP":   "203.0.113.45",
				"X-Real-IP":       "192.0.2.1",
				"X-Forwarded-For": "10.0.0.1",
			},
			expected: "203.0.113.45",
		},
		{
			name:       "X-Real-IP is second priority",
			remoteAddr: "172.16.29.234:54686",
			headers: map[string]string{
				"X-Real-IP":       "192.0.2.1",
				"X-Forwarded-For": "10.0.0.1",
			},
			expected: "192.0.2.1",
		},
		{
			name:       "X-Forwarded-For first IP is third priority",
			remoteAddr: "172.16.29.234:54686",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.1, 10.0.0.2, 10.0.0.3",
			},
			expected: "10.0.0.1",
		},
		{
			name:       "falls back to RemoteAddr when no headers",
			remoteAddr: "192.168.1.100:12345",
			headers:    map[string]string{},
			expected:   "192.168.1.100",
		},
		{
			name:       "trims whitespace from headers",
			remoteAddr: "172.16.0.1:8080",
			headers: map[string]string{
				"Fly-Client-IP": "  203.0.113.45  ",
			},
			expected: "203.0.113.45",
		},
		{
			name:       "handles IPv6 RemoteAddr fallback",
			remoteAddr: "[2001:db8::1]:8080",
			headers:    map[string]string{},
			expected:   "2001:db8::1",
		},
		{
			name:       "ignores empty Fly-Client-IP",
			remoteAddr: "192.168.1.100:12345",
			headers: map[string]string{
				"Fly-Client-IP": "",
				"X-Real-IP":     "192.0.2.1",
			},
			expected: "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr

			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			info := extract(req)
			if info.Primary != tt.expected {
				t.Errorf("extract().Primary = %q, want %q", info.Primary, tt.expected)
			}
		})
	}
}

func TestExtract_RateLimitKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		expected   string
	}{
		{
			name:       "combines all IPs sorted",
			remoteAddr: "172.16.29.234:54686",
			headers: map[string]string{
				"Fly-Client-IP": "203.0.113.45",
				"X-Real-IP":     "198.51.100.1",
			},
			expected: "172.16.29.234|198.51.100.1|203.0.113.45",
		},
		{
			name:       "deduplicates IPs",
			remoteAddr: "192.168.1.100:12345",
			headers: map[string]string{
				"Fly-Client-IP": "192.168.1.100",
				"X-Real-IP":     "192.168.1.100",
			},
			expected: "192.168.1.100",
		},
		{
			name:       "only RemoteAddr when no headers",
			remoteAddr: "192.168.1.100:12345",
			headers:    map[string]string{},
			expected:   "192.168.1.100",
		},
		{
			name:       "X-Forwarded-For only uses first IP",
			remoteAddr: "172.16.0.1:8080",
			headers: map[string]string{
				"X-Forwarded-For": "10.0.0.1, 10.0.0.2, 10.0.0.3",
			},
			expected: "10.0.0.1|172.16.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr

			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}

			info := extract(req)
			if info.RateLimitKey != tt.expected {
				t.Errorf("extract().RateLimitKey = %q, want %q", info.RateLimitKey, tt.expected)
			}
		})
	}
}

func TestMiddleware_SetsRemoteAddrAndContext(t *testing.T) {
	var capturedRemoteAddr string
	var capturedInfo Info

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedRemoteAddr = r.RemoteAddr
		capturedInfo = FromRequest(r)
		w.WriteHeader(http.StatusOK)
	})

	wrapped := Middleware(handler)

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "172.16.29.234:54686"
	req.Header.Set("Fly-Client-IP", "203.0.113.45")

	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	if capturedRemoteAddr != "203.0.113.45" {
		t.Errorf("r.RemoteAddr = %q, want %q", capturedRemoteAddr, "203.0.113.45")
	}
	if capturedInfo.RateLimitKey != "172.16.29.234|203.0.113.45" {
		t.Errorf("RateLimitKey = %q", capturedInfo.RateLimitKey)
	}
}

func TestFromContext_ReturnsZeroWhenNotSet(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	info := FromRequest(req)

	if info.Primary != "" || info.RateLimitKey != "" {
		t.Errorf("expected zero Info, got %+v", info)
	}
}
