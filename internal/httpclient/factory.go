// Package httpclient builds the outbound HTTP clients used to touch scan
// targets and model servers.
package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// ErrBlockedAddress is returned when a target resolves to a private,
// loopback or link-local address and private targets are blocked.
var ErrBlockedAddress = errors.New("blocked private address")

type Config struct {
	Timeout      time.Duration
	BlockPrivate bool
	// SkipTLSVerify lets the client read headers from hosts with broken
	// certificates. Certificate quality is measured separately.
	SkipTLSVerify bool
	UserAgent     string
}

func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		BlockPrivate:  true,
		SkipTLSVerify: true,
		UserAgent:     "Mozilla/5.0 (compatible; SafeLink-Scanner/1.0)",
	}
}

// NewSecureClient returns a client that never follows redirects on its own
// and, when BlockPrivate is set, refuses to dial private addresses. The
// address check runs on the resolved IP, so a hostname cannot rebind to a
// private address between check and dial.
func NewSecureClient(config Config) *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if !config.BlockPrivate {
				return dialer.DialContext(ctx, network, addr)
			}

			ip, port, err := resolvePublic(ctx, addr)
			if err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: config.Timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if config.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: &userAgentTransport{base: transport, userAgent: config.UserAgent},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewServiceClient is for trusted internal services such as a model server:
// verified TLS, private addresses allowed.
func NewServiceClient(timeout time.Duration) *http.Client {
	return NewSecureClient(Config{Timeout: timeout})
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

func resolvePublic(ctx context.Context, addr string) (net.IP, string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, "", fmt.Errorf("invalid address %q: %w", addr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return nil, "", fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
		}
		return ip, port, nil
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return nil, "", fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, ip)
		}
	}
	if len(ips) == 0 {
		return nil, "", fmt.Errorf("no addresses for %s", host)
	}
	return ips[0], port, nil
}

// IsPrivateIP reports loopback, private, link-local and unspecified
// addresses.
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// CloseBody drains and closes a response body so the connection can be
// reused.
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
