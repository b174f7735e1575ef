package probe

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultPort is used when the target carries no explicit port.
const DefaultPort = 443

// Target is a normalized host/port pair to probe.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns host:port suitable for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// IsLoopback reports whether the host is one of the literal loopback names
// that are never probed.
func (t Target) IsLoopback() bool {
	switch t.Host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func (t Target) String() string { return t.Address() }

// ParseTarget normalizes a URL, host or host:port into a Target.
//
// A leading http:// or https:// is dropped (case-insensitive), everything from
// the first "/" on is discarded and an explicit port is split off the last ":".
// Bracketed IPv6 literals ("[::1]:8443") are unwrapped; an unbracketed string
// with more than one ":" is taken as a bare IPv6 host. Unicode hostnames are
// converted to their ASCII (punycode) form.
func ParseTarget(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			break
		}
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}

	host, portStr, err := splitHostPort(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %q: %w", ErrInvalidTarget, raw, err)
	}
	if host == "" {
		return Target{}, fmt.Errorf("%w: %q: empty host", ErrInvalidTarget, raw)
	}

	port := DefaultPort
	if portStr != "" {
		n, err := strconv.Atoi(portStr)
		if err != nil || n < 1 || n > 65535 {
			return Target{}, fmt.Errorf("%w: %q: bad port %q", ErrInvalidTarget, raw, portStr)
		}
		port = n
	}

	if net.ParseIP(host) == nil {
		name, err := normalizeHost(host)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q: %w", ErrInvalidTarget, raw, err)
		}
		host = name
	}
	return Target{Host: host, Port: port}, nil
}

// hostProfile maps Unicode names without STD3 or hyphen-position rules, so
// names that resolve in DNS ("r3---sn-x.googlevideo.com", "my_host.example")
// are not rejected.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(false),
	idna.CheckHyphens(false),
)

// normalizeHost lowercases ASCII names and converts Unicode names to
// punycode. Every label must be non-empty and made of [a-z0-9_-].
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(host, ".")
	if isASCII(host) {
		host = strings.ToLower(host)
	} else {
		ascii, err := hostProfile.ToASCII(host)
		if err != nil {
			return "", err
		}
		host = ascii
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return "", fmt.Errorf("empty label")
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
				return "", fmt.Errorf("disallowed character %q", r)
			}
		}
	}
	return host, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func splitHostPort(s string) (host, port string, err error) {
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return "", "", fmt.Errorf("missing ']'")
		}
		host = s[1:end]
		rest := s[end+1:]
		switch {
		case rest == "":
		case strings.HasPrefix(rest, ":"):
			port = rest[1:]
		default:
			return "", "", fmt.Errorf("unexpected %q after ']'", rest)
		}
		return host, port, nil
	}
	if strings.Count(s, ":") > 1 {
		return s, "", nil
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:], nil
	}
	return s, "", nil
}
