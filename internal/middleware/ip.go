package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client address used as the rate-limit key.
// X-Forwarded-For / X-Real-IP are honoured only when trustProxy is set;
// trustedProxyCount is how many right-most XFF hops are our own proxies
// (0 means 1).
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}
	ips := strings.Split(xff, ",")
	proxies := trustedProxyCount
	if proxies == 0 {
		proxies = 1
	}
	idx := len(ips) - proxies - 1
	if idx < 0 {
		idx = 0
	}
	ip := strings.TrimSpace(ips[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
