package blacklist

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	_, loopbackNet, _   = net.ParseCIDR("127.0.0.0/8")
	_, dnsblErrorNet, _ = net.ParseCIDR("127.255.255.0/24")
)

// DNSBLSource queries a DNS-based block list such as a URIBL or Spamhaus
// DBL zone. Listed names resolve to an address in 127.0.0.0/8.
type DNSBLSource struct {
	zone   string
	server string
	client *dns.Client
}

func NewDNSBLSource(zone, server string, timeout time.Duration) *DNSBLSource {
	return &DNSBLSource{
		zone:   strings.Trim(zone, "."),
		server: server,
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
	}
}

func (s *DNSBLSource) Name() string { return "dnsbl:" + s.zone }

func (s *DNSBLSource) Lookup(ctx context.Context, domain, urlHash string) (Match, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(s.queryName(domain)), dns.TypeA)
	m.RecursionDesired = true

	r, _, err := s.client.ExchangeContext(ctx, m, s.server)
	if err != nil {
		return Match{}, fmt.Errorf("dnsbl query %s: %w", s.zone, err)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return Match{}, nil
	default:
		return Match{}, fmt.Errorf("dnsbl %s answered %s", s.zone, dns.RcodeToString[r.Rcode])
	}

	for _, ans := range r.Answer {
		a, ok := ans.(*dns.A)
		if !ok {
			continue
		}
		if dnsblErrorNet.Contains(a.A) {
			return Match{}, fmt.Errorf("dnsbl %s refused query with code %s", s.zone, a.A)
		}
		if loopbackNet.Contains(a.A) {
			return Match{Matched: true, Source: s.Name()}, nil
		}
	}
	return Match{}, nil
}

// queryName reverses IPv4 octets the way IP-based lists expect; names are
// queried as-is.
func (s *DNSBLSource) queryName(domain string) string {
	if ip := net.ParseIP(domain); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("%d.%d.%d.%d.%s", v4[3], v4[2], v4[1], v4[0], s.zone)
		}
	}
	return domain + "." + s.zone
}
