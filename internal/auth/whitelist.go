package auth

import (
	"net"
	"path"
	"strings"
)

// Whitelist matches a remote address against a set of CIDR or glob
// patterns. An empty Whitelist allows every address.
type Whitelist struct {
	patterns []string
	nets     []*net.IPNet
}

// NewWhitelist compiles a list of CIDR ("10.0.0.0/8") or glob
// ("192.168.1.*") patterns.
func NewWhitelist(patterns []string) *Whitelist {
	w := &Whitelist{patterns: patterns}
	for _, p := range patterns {
		if _, ipnet, err := net.ParseCIDR(p); err == nil {
			w.nets = append(w.nets, ipnet)
		}
	}
	return w
}

// Allowed reports whether addr (a bare IP, with or without a port) matches
// the whitelist. An empty whitelist allows everything.
func (w *Whitelist) Allowed(addr string) bool {
	if len(w.patterns) == 0 {
		return true
	}

	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)

	for _, n := range w.nets {
		if ip != nil && n.Contains(ip) {
			return true
		}
	}
	for _, p := range w.patterns {
		if strings.Contains(p, "/") {
			continue // already checked as CIDR above
		}
		if ok, _ := path.Match(p, host); ok {
			return true
		}
	}
	return false
}
