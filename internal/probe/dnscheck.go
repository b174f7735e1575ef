package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// DNS classes attached to FAILED probes as "dns=<class>".
const (
	DNSResolves        = "RESOLVES"
	DNSNXDomain        = "NXDOMAIN"
	DNSNoARecord       = "NO_A_RECORD"
	DNSServfailTimeout = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName     = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string
	HasAOrAAAA    bool
	IPs           []net.IP
	CNAME         string
	HasNS         bool
	Nameservers   []string
	Class         string
	ResolverError string
}

// Resolver is the subset of *net.Resolver used by CheckDNS.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

var dnsTimeout = 3 * time.Second

// CheckDNS classifies why a host may be unreachable. A nil resolver uses the
// OS resolver.
func CheckDNS(ctx context.Context, r Resolver, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") || net.ParseIP(s.Domain) != nil {
		s.Class = DNSInvalidName
		return s
	}
	if r == nil {
		r = &net.Resolver{}
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Domain)
	if err == nil && len(ips) > 0 {
		s.HasAOrAAAA = true
		s.IPs = ips
		s.Class = DNSResolves
	} else if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfailTimeout
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case s.HasAOrAAAA:
			s.Class = DNSResolves
		case s.HasNS:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfailTimeout
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}

// DiagnoseChecker appends a DNS classification to results that failed to
// connect. Other results, and targets given as IP literals, pass through
// untouched.
type DiagnoseChecker struct {
	Inner    Checker
	Resolver Resolver
}

func (d *DiagnoseChecker) Check(ctx context.Context, target string) Result {
	res := d.Inner.Check(ctx, target)
	if res.Status != StatusFailed || !errors.Is(res.Err, ErrConnectFailed) {
		return res
	}
	if net.ParseIP(res.Host) != nil {
		return res
	}
	dns := CheckDNS(ctx, d.Resolver, res.Host)
	res.Reason = strings.TrimSpace(res.Reason + " dns=" + dns.Class)
	return res
}
