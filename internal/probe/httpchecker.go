package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// VerifyPolicy decides, per outbound call to the service's own URL, whether
// TLS certificates should be verified. The answer is Prober.ShouldVerifyTLS
// on SelfURL, so anything short of VALID relaxes verification.
type VerifyPolicy struct {
	Prober  *Prober
	SelfURL string
	Logger  Logger
}

// Decide returns the verification setting and logs it alongside requestURL.
func (v *VerifyPolicy) Decide(ctx context.Context, requestURL string) bool {
	res := v.Prober.Probe(ctx, v.SelfURL)
	verify := res.IsValid()
	if v.Logger != nil {
		setting := "FALSE"
		if verify {
			setting = "TRUE"
		}
		v.Logger.Log(fmt.Sprintf("verify setting: %s for %s (request: %s)", setting, res.Host, requestURL))
	}
	return verify
}

// Client builds an *http.Client for requestURL that honours Decide.
func (v *VerifyPolicy) Client(ctx context.Context, requestURL string, timeout time.Duration) *http.Client {
	verify := v.Decide(ctx, requestURL)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !verify, //nolint:gosec
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// HTTPOutcome is the result of a plain HTTP reachability check.
type HTTPOutcome struct {
	Up         bool    `json:"up"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Reason     string  `json:"reason"`
}

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(client *http.Client) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPChecker{Client: client}
}

// Check sends HEAD, falling back to GET when the server answers 405.
func (c *HTTPChecker) Check(ctx context.Context, url string) HTTPOutcome {
	start := time.Now()
	out := c.do(ctx, http.MethodHead, url)
	if out.StatusCode == http.StatusMethodNotAllowed {
		out = c.do(ctx, http.MethodGet, url)
	}
	out.LatencyMS = time.Since(start).Seconds() * 1000
	return out
}

func (c *HTTPChecker) do(ctx context.Context, method, url string) HTTPOutcome {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return HTTPOutcome{Reason: err.Error()}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return HTTPOutcome{Reason: "http_error: " + err.Error()}
	}
	defer resp.Body.Close()
	return HTTPOutcome{
		Up:         resp.StatusCode >= 200 && resp.StatusCode < 400,
		StatusCode: resp.StatusCode,
		Reason:     resp.Status,
	}
}
