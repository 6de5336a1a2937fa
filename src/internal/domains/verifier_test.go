package domains

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testServerIP = "192.0.2.10"
	testAppName  = "caslinks"
)

// fakeResolver serves canned DNS answers keyed by lookup name.
type fakeResolver struct {
	ips  map[string][]string
	txts map[string][]string
	errs map[string]error
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	if err, ok := f.errs[host]; ok {
		return nil, err
	}
	ips, ok := f.ips[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	records, ok := f.txts[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func newTestVerifier(resolver Resolver) *Verifier {
	return NewVerifierWithResolver(resolver, testAppName, testServerIP, time.Second)
}

func TestVerifyBothRecordsCorrect(t *testing.T) {
	resolver := &fakeResolver{
		ips:  map[string][]string{"example.com": {testServerIP}},
		txts: map[string][]string{"_caslinks.example.com": {"caslinks_verify=tok123"}},
	}

	result, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	require.NoError(t, err)
	assert.True(t, result.Verified())
	assert.NoError(t, Reason(result, err))
}

func TestVerifyExtraTXTRecordsStillMatch(t *testing.T) {
	resolver := &fakeResolver{
		ips: map[string][]string{"example.com": {"203.0.113.5", testServerIP}},
		txts: map[string][]string{"_caslinks.example.com": {
			"v=spf1 -all",
			" caslinks_verify=tok123 ",
		}},
	}

	result, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	require.NoError(t, err)
	assert.True(t, result.Verified())
}

func TestVerifyTokenMismatchIsDefinite(t *testing.T) {
	resolver := &fakeResolver{
		ips:  map[string][]string{"example.com": {testServerIP}},
		txts: map[string][]string{"_caslinks.example.com": {"caslinks_verify=stale"}},
	}

	result, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	require.NoError(t, err)
	assert.False(t, result.Verified())
	assert.True(t, result.TXTFound)
	assert.ErrorIs(t, Reason(result, err), ErrTokenMismatch)
}

func TestVerifyNothingPublishedYet(t *testing.T) {
	resolver := &fakeResolver{}

	result, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	require.NoError(t, err)
	assert.False(t, result.Verified())
	assert.False(t, result.TXTFound)
	assert.ErrorIs(t, Reason(result, err), ErrDNSNotPropagated)
}

func TestVerifyResolverFailureIsTransient(t *testing.T) {
	resolver := &fakeResolver{
		ips: map[string][]string{"example.com": {testServerIP}},
		errs: map[string]error{
			"_caslinks.example.com": &net.DNSError{Err: "server misbehaving", IsTemporary: true},
		},
	}

	_, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	assert.ErrorIs(t, err, ErrDNSNotPropagated)
}

func TestVerifyWrongARecordOnly(t *testing.T) {
	resolver := &fakeResolver{
		ips:  map[string][]string{"example.com": {"203.0.113.99"}},
		txts: map[string][]string{"_caslinks.example.com": {"caslinks_verify=tok123"}},
	}

	result, err := newTestVerifier(resolver).Verify(context.Background(), "example.com", "tok123")
	require.NoError(t, err)
	assert.False(t, result.AMatch)
	assert.True(t, result.TXTMatch)
	assert.False(t, result.Verified())
	// The A record points elsewhere but the token matched, so the
	// answer is "not propagated", not a mismatch.
	assert.ErrorIs(t, Reason(result, err), ErrDNSNotPropagated)
}
