package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds connect plus handshake when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// DialFunc opens the raw TCP connection for a probe.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober checks whether a host serves a verified, currently valid leaf
// certificate. The zero value is usable; a Prober is safe for concurrent use
// as long as its fields are not modified.
type Prober struct {
	// Timeout bounds the TCP connect and TLS handshake together.
	Timeout time.Duration
	// RootCAs overrides the system trust store when non-nil.
	RootCAs *x509.CertPool
	// Dial overrides the network dialer (tests redirect hosts with it).
	Dial DialFunc
	// Now overrides the clock used for the validity-window decision.
	Now func() time.Time
	// Logger receives one status line per probe. Nil disables logging.
	Logger Logger
}

func NewProber(timeout time.Duration, logger Logger) *Prober {
	return &Prober{Timeout: timeout, Logger: logger}
}

// Check implements Checker.
func (p *Prober) Check(ctx context.Context, target string) Result {
	return p.Probe(ctx, target)
}

// Probe normalizes rawTarget, performs a verifying TLS handshake and reports
// whether the leaf certificate's validity window contains now. It never
// returns an error: every failure is folded into a FAILED Result whose Err
// wraps one of the package's failure kinds.
func (p *Prober) Probe(ctx context.Context, rawTarget string) Result {
	res := p.probe(ctx, rawTarget)
	p.logger().Log(res.LogLine())
	return res
}

// ProbeTimeout is Probe with a per-call timeout override.
func (p *Prober) ProbeTimeout(ctx context.Context, rawTarget string, timeout time.Duration) Result {
	cp := *p
	cp.Timeout = timeout
	return cp.Probe(ctx, rawTarget)
}

// ShouldVerifyTLS decides whether outbound calls to selfHost should enforce
// certificate verification. Only a VALID probe yields true: SKIPPED and FAILED
// both relax verification so that local and self-signed deployments keep
// working. This is a usability trade-off, not a hardening default.
func (p *Prober) ShouldVerifyTLS(ctx context.Context, selfHost string) bool {
	return p.Probe(ctx, selfHost).IsValid()
}

func (p *Prober) probe(ctx context.Context, rawTarget string) Result {
	t, err := ParseTarget(rawTarget)
	if err != nil {
		return failed(Result{Host: rawTarget}, err)
	}
	res := Result{Host: t.Host, Port: t.Port}

	if t.IsLoopback() {
		res.Status = StatusSkipped
		res.Reason = "loopback host"
		return res
	}

	start := time.Now()
	certs, err := p.fetchPeerCertificates(ctx, t)
	res.LatencyMS = time.Since(start).Seconds() * 1000
	if err != nil {
		return failed(res, err)
	}
	return p.decide(res, certs)
}

// decide classifies the peer chain of a completed handshake: the leaf must be
// present and parse with both validity timestamps set; the result is VALID
// when now is inside [notBefore, notAfter).
func (p *Prober) decide(res Result, certs []*x509.Certificate) Result {
	if len(certs) == 0 || certs[0] == nil {
		return failed(res, ErrNoPeerCertificate)
	}

	// Re-parse the raw DER so the window comes from the encoded certificate
	// itself rather than whatever the TLS stack cached.
	cert, err := x509.ParseCertificate(certs[0].Raw)
	if err != nil {
		return failed(res, fmt.Errorf("%w: %w", ErrCertificateParseFailed, err))
	}
	if cert.NotBefore.IsZero() || cert.NotAfter.IsZero() {
		return failed(res, fmt.Errorf("%w: missing validity timestamps", ErrCertificateParseFailed))
	}

	res.NotBefore = cert.NotBefore.UTC()
	res.NotAfter = cert.NotAfter.UTC()
	if InWindow(p.now(), cert.NotBefore, cert.NotAfter) {
		res.Status = StatusValid
	} else {
		res.Status = StatusInvalid
	}
	return res
}

// fetchPeerCertificates dials, handshakes and returns the peer chain. The
// connection is closed before it returns on every path.
func (p *Prober) fetchPeerCertificates(ctx context.Context, t Target) ([]*x509.Certificate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout())
	defer cancel()

	raw, err := p.dialer()(ctx, "tcp", t.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	conn := tls.Client(raw, &tls.Config{
		ServerName: t.Host,
		MinVersion: tls.VersionTLS12,
		// Verification is done in VerifyConnection so that the chain is
		// checked independently of the leaf's validity window.
		InsecureSkipVerify: true, //nolint:gosec
		VerifyConnection:   p.verifyConnection(t.Host),
	})
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: handshake timed out: %w", ErrConnectFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	return conn.ConnectionState().PeerCertificates, nil
}

// verifyConnection checks chain and hostname. The verification time is pinned
// inside the leaf's own window; whether "now" falls inside that window is
// decided afterwards, so expired leaves come back INVALID rather than FAILED.
func (p *Prober) verifyConnection(host string) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return nil
		}
		leaf := cs.PeerCertificates[0]
		if isSelfSigned(leaf) {
			return errSelfSigned
		}
		inter := x509.NewCertPool()
		for _, c := range cs.PeerCertificates[1:] {
			inter.AddCert(c)
		}
		_, err := leaf.Verify(x509.VerifyOptions{
			DNSName:       host,
			Roots:         p.RootCAs,
			Intermediates: inter,
			CurrentTime:   clampToWindow(p.now(), leaf.NotBefore, leaf.NotAfter),
		})
		return err
	}
}

func isSelfSigned(c *x509.Certificate) bool {
	if !bytes.Equal(c.RawIssuer, c.RawSubject) {
		return false
	}
	return c.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature) == nil
}

func clampToWindow(now, notBefore, notAfter time.Time) time.Time {
	if now.Before(notBefore) {
		return notBefore
	}
	if now.After(notAfter) {
		return notAfter
	}
	return now
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func failed(res Result, err error) Result {
	res.Status = StatusFailed
	res.Reason = err.Error()
	res.Err = err
	return res
}

func (p *Prober) timeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

func (p *Prober) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Prober) dialer() DialFunc {
	if p.Dial != nil {
		return p.Dial
	}
	return (&net.Dialer{}).DialContext
}

func (p *Prober) logger() Logger {
	if p.Logger == nil {
		return nopLogger{}
	}
	return p.Logger
}
