package signature

import (
	"fmt"
	"strings"
	"time"
)

// Provider selects the signing scheme of a sender.
type Provider int

const (
	ProviderGeneric Provider = iota
	ProviderGitHub
	ProviderGitLab
	ProviderSentry
	ProviderSlack
	ProviderGrafana

	providerCount
)

var providerNames = [providerCount]string{
	ProviderGeneric: "generic",
	ProviderGitHub:  "github",
	ProviderGitLab:  "gitlab",
	ProviderSentry:  "sentry",
	ProviderSlack:   "slack",
	ProviderGrafana: "grafana",
}

func (p Provider) String() string {
	if p < 0 || p >= providerCount {
		return fmt.Sprintf("provider(%d)", int(p))
	}
	return providerNames[p]
}

// Providers lists every supported provider.
func Providers() []Provider {
	out := make([]Provider, 0, providerCount)
	for p := Provider(0); p < providerCount; p++ {
		out = append(out, p)
	}
	return out
}

// ParseProvider maps a provider tag to its Provider.
func ParseProvider(name string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range providerNames {
		if n == name {
			return Provider(p), nil
		}
	}
	return ProviderGeneric, fmt.Errorf("unknown signature provider %q", name)
}

// Header names consumed by the provider strategies.
const (
	HeaderGitHub          = "x-hub-signature-256"
	HeaderGitLab          = "x-gitlab-token"
	HeaderSentry          = "sentry-hook-signature"
	HeaderSlackTimestamp  = "x-slack-request-timestamp"
	HeaderSlack           = "x-slack-signature"
	HeaderGrafana         = "x-grafana-signature"
	HeaderGeneric         = "x-signature"
	HeaderGenericFallback = "x-webhook-signature"
)

// SignatureHeaders lists every header a request handler should collect.
var SignatureHeaders = []string{
	HeaderGitHub,
	HeaderGitLab,
	HeaderSentry,
	HeaderSlackTimestamp,
	HeaderSlack,
	HeaderGrafana,
	HeaderGeneric,
	HeaderGenericFallback,
}

// Failure explains why a signature was rejected.
type Failure string

const (
	FailureMissing Failure = "MISSING_SIGNATURE"
	FailureInvalid Failure = "INVALID_SIGNATURE"
	FailureExpired Failure = "EXPIRED_TIMESTAMP"
)

// Result is the outcome of a verification.
type Result struct {
	Valid bool
	Error Failure
}

func ok() Result                 { return Result{Valid: true} }
func fail(reason Failure) Result { return Result{Error: reason} }

type strategy func(v *Verifier, body []byte, headers map[string]string, secret string) Result

var strategies = [providerCount]strategy{
	ProviderGeneric: verifyGeneric,
	ProviderGitHub:  verifyGitHub,
	ProviderGitLab:  verifyGitLab,
	ProviderSentry:  verifySentry,
	ProviderSlack:   verifySlack,
	ProviderGrafana: verifyGrafana,
}

// Verifier dispatches verification to the provider strategy.
type Verifier struct {
	MaxAge time.Duration
	Clock  func() time.Time
}

// NewVerifier returns a verifier with the default replay window.
func NewVerifier() *Verifier {
	return &Verifier{MaxAge: DefaultMaxAge}
}

// Verify checks body against the provider's signature headers. Header names
// in headers must be lowercase.
func (v *Verifier) Verify(provider Provider, body []byte, headers map[string]string, secret string) Result {
	if provider < 0 || provider >= providerCount {
		return fail(FailureInvalid)
	}
	return strategies[provider](v, body, headers, secret)
}

func (v *Verifier) now() time.Time {
	if v != nil && v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

func (v *Verifier) maxAge() time.Duration {
	if v != nil && v.MaxAge > 0 {
		return v.MaxAge
	}
	return DefaultMaxAge
}

func verifyHexHeader(body []byte, headers map[string]string, header, secret, prefix string) Result {
	sig := headers[header]
	if sig == "" {
		return fail(FailureMissing)
	}
	if !VerifyHMAC(body, sig, secret, SHA256, prefix) {
		return fail(FailureInvalid)
	}
	return ok()
}

func verifyGitHub(_ *Verifier, body []byte, headers map[string]string, secret string) Result {
	return verifyHexHeader(body, headers, HeaderGitHub, secret, "sha256=")
}

func verifyGitLab(_ *Verifier, _ []byte, headers map[string]string, secret string) Result {
	token := headers[HeaderGitLab]
	if token == "" {
		return fail(FailureMissing)
	}
	if !SecureCompare(token, secret) {
		return fail(FailureInvalid)
	}
	return ok()
}

func verifySentry(_ *Verifier, body []byte, headers map[string]string, secret string) Result {
	return verifyHexHeader(body, headers, HeaderSentry, secret, "")
}

func verifySlack(v *Verifier, body []byte, headers map[string]string, secret string) Result {
	ts := headers[HeaderSlackTimestamp]
	sig := headers[HeaderSlack]
	if ts == "" || sig == "" {
		return fail(FailureMissing)
	}
	if !IsTimestampValid(ts, v.maxAge(), v.now()) {
		return fail(FailureExpired)
	}

	base := make([]byte, 0, len(ts)+len(body)+4)
	base = append(base, "v0:"...)
	base = append(base, ts...)
	base = append(base, ':')
	base = append(base, body...)
	if !VerifyHMAC(base, sig, secret, SHA256, "v0=") {
		return fail(FailureInvalid)
	}
	return ok()
}

func verifyGrafana(_ *Verifier, body []byte, headers map[string]string, secret string) Result {
	return verifyHexHeader(body, headers, HeaderGrafana, secret, "")
}

func verifyGeneric(_ *Verifier, body []byte, headers map[string]string, secret string) Result {
	header := HeaderGeneric
	if headers[header] == "" {
		header = HeaderGenericFallback
	}
	return verifyHexHeader(body, headers, header, secret, "")
}
