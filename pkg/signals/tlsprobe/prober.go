// Package tlsprobe inspects the certificate a host presents on its TLS port.
package tlsprobe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ocsp"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/signals"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

const (
	OCSPGood       = "good"
	OCSPRevoked    = "revoked"
	OCSPUnknown    = "unknown"
	OCSPUnparsable = "unparsable"
)

type Prober struct {
	timeout         time.Duration
	port            int
	roots           *x509.CertPool
	checkRevocation bool
	now             func() time.Time
}

type Option func(*Prober)

// WithRoots replaces the trust store. A nil pool means the system roots.
func WithRoots(pool *x509.CertPool) Option {
	return func(p *Prober) { p.roots = pool }
}

func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

func NewProber(cfg config.TLSConfig, opts ...Option) (*Prober, error) {
	p := &Prober{
		timeout:         cfg.Timeout,
		port:            cfg.Port,
		checkRevocation: cfg.CheckRevocation,
		now:             time.Now,
	}
	if p.timeout <= 0 {
		p.timeout = 5 * time.Second
	}
	if p.port <= 0 {
		p.port = 443
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		p.roots = pool
	}

	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Probe performs one handshake. A failed handshake is a degraded outcome; a
// certificate that fails verification is a measurement, not a failure.
func (p *Prober) Probe(ctx context.Context, target types.NormalizedURL) signals.Outcome[types.CertInfo] {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(target.Host, strconv.Itoa(p.portFor(target)))

	tlsConfig := &tls.Config{
		// Verification happens below so a bad chain can still be described.
		InsecureSkipVerify: true, //nolint:gosec
		MinVersion:         tls.VersionTLS10,
	}
	if !target.IsIP {
		tlsConfig.ServerName = target.Host
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.timeout},
		Config:    tlsConfig,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return signals.Degraded(signals.TLS, types.CertInfo{}, "tls handshake with %s: %v", addr, err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	return signals.OK(signals.TLS, p.inspect(target.Host, state))
}

func (p *Prober) portFor(target types.NormalizedURL) int {
	if target.Scheme == types.SchemeHTTPS {
		if u, err := url.Parse(target.URL); err == nil && u.Port() != "" {
			if port, err := strconv.Atoi(u.Port()); err == nil {
				return port
			}
		}
	}
	return p.port
}

func (p *Prober) inspect(host string, state tls.ConnectionState) types.CertInfo {
	info := types.CertInfo{
		HandshakeOK: true,
		Version:     tls.VersionName(state.Version),
	}
	if len(state.PeerCertificates) == 0 {
		info.VerifyError = "no peer certificate"
		return info
	}

	now := p.now()
	leaf := state.PeerCertificates[0]

	info.Issuer = leaf.Issuer.String()
	info.Subject = leaf.Subject.String()
	info.DNSNames = leaf.DNSNames
	info.NotBefore = leaf.NotBefore
	info.NotAfter = leaf.NotAfter
	info.DaysLeft = int(leaf.NotAfter.Sub(now).Hours() / 24)
	info.Expired = now.After(leaf.NotAfter)

	intermediates := x509.NewCertPool()
	for _, c := range state.PeerCertificates[1:] {
		intermediates.AddCert(c)
	}

	_, verifyErr := leaf.Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         p.roots,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	info.Verified = verifyErr == nil
	if verifyErr != nil {
		info.VerifyError = verifyErr.Error()
	}

	var unknownAuthority x509.UnknownAuthorityError
	info.SelfSigned = bytes.Equal(leaf.RawIssuer, leaf.RawSubject) &&
		errors.As(verifyErr, &unknownAuthority)

	if p.checkRevocation && len(state.OCSPResponse) > 0 {
		info.OCSPStatus = ocspStatus(state.OCSPResponse, state.PeerCertificates)
		if info.OCSPStatus == OCSPRevoked {
			info.Verified = false
			info.VerifyError = "certificate revoked (stapled OCSP)"
		}
	}

	return info
}

func ocspStatus(raw []byte, chain []*x509.Certificate) string {
	var issuer *x509.Certificate
	if len(chain) > 1 {
		issuer = chain[1]
	}

	resp, err := ocsp.ParseResponse(raw, issuer)
	if err != nil {
		return OCSPUnparsable
	}

	switch resp.Status {
	case ocsp.Good:
		return OCSPGood
	case ocsp.Revoked:
		return OCSPRevoked
	default:
		return OCSPUnknown
	}
}
