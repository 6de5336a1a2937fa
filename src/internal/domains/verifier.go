package domains

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Resolver is the subset of net.Resolver the verifier needs. Tests
// substitute a fake; production uses net.DefaultResolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Result holds the outcome of one verification attempt. Both checks
// must pass before a domain can advance to verified_dns.
type Result struct {
	AMatch   bool
	TXTMatch bool
	// TXTFound is true when TXT records existed at the expected host
	// but none carried the expected value. It distinguishes a
	// mis-copied token from records that have not propagated yet.
	TXTFound bool
}

// Verified reports whether both the A and TXT checks passed.
func (r Result) Verified() bool {
	return r.AMatch && r.TXTMatch
}

// Verifier performs external DNS lookups for candidate domains and
// compares them against the platform's published values.
type Verifier struct {
	resolver Resolver
	appName  string
	serverIP string
	timeout  time.Duration
}

// NewVerifier creates a verifier from configuration.
func NewVerifier(cfg *viper.Viper) *Verifier {
	timeout := cfg.GetDuration("domains.verify_timeout")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		resolver: net.DefaultResolver,
		appName:  cfg.GetString("app.name"),
		serverIP: cfg.GetString("platform.server_ip"),
		timeout:  timeout,
	}
}

// NewVerifierWithResolver creates a verifier with an explicit resolver.
func NewVerifierWithResolver(resolver Resolver, appName, serverIP string, timeout time.Duration) *Verifier {
	return &Verifier{
		resolver: resolver,
		appName:  appName,
		serverIP: serverIP,
		timeout:  timeout,
	}
}

// Verify performs one A-record and one TXT-record lookup for domain
// and compares them against the platform server IP and the expected
// token. A non-nil error means the answer was transient (lookup
// failure, nothing published yet) and the attempt must be retried; it
// never represents a definite mismatch.
func (v *Verifier) Verify(ctx context.Context, domain, token string) (Result, error) {
	domain = NormalizeDomain(domain)

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var result Result

	// A record check
	addrs, aErr := v.resolver.LookupIPAddr(ctx, domain)
	if aErr == nil {
		for _, addr := range addrs {
			if addr.IP.String() == v.serverIP {
				result.AMatch = true
				break
			}
		}
	}

	// TXT record check at the namespaced host
	txtHost := TXTRecordHost(v.appName, domain)
	expected := TXTRecordValue(v.appName, token)
	records, txtErr := v.resolver.LookupTXT(ctx, txtHost)
	if txtErr == nil {
		result.TXTFound = len(records) > 0
		for _, record := range records {
			if strings.TrimSpace(record) == expected {
				result.TXTMatch = true
				break
			}
		}
	}

	// Lookup failures (NXDOMAIN, timeout, SERVFAIL) are "not yet
	// propagated", never a definite mismatch.
	if aErr != nil && txtErr != nil {
		return result, fmt.Errorf("%w: %v", ErrDNSNotPropagated, txtErr)
	}
	if aErr != nil && !isNotFound(aErr) {
		return result, fmt.Errorf("%w: %v", ErrDNSNotPropagated, aErr)
	}
	if txtErr != nil && !isNotFound(txtErr) {
		return result, fmt.Errorf("%w: %v", ErrDNSNotPropagated, txtErr)
	}

	return result, nil
}

// isNotFound reports whether a lookup error is an authoritative
// "no such record" answer rather than a resolver failure.
func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}

// Reason translates a verification outcome into the error the tenant
// should see, or nil when verification succeeded.
func Reason(result Result, err error) error {
	if err != nil {
		return err
	}
	if result.Verified() {
		return nil
	}
	if result.TXTFound && !result.TXTMatch {
		return ErrTokenMismatch
	}
	return ErrDNSNotPropagated
}
