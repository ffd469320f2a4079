package blacklist

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNSBL serves a fake block list zone on a loopback UDP port.
func startDNSBL(t *testing.T, answers map[string]string, servfail map[string]bool) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		name := r.Question[0].Name

		switch {
		case servfail[name]:
			m.Rcode = dns.RcodeServerFailure
		case answers[name] != "":
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(answers[name]),
			})
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestDNSBLSource(t *testing.T) {
	addr := startDNSBL(t,
		map[string]string{
			"listed.example.dbl.test.":  "127.0.1.2",
			"public.example.dbl.test.":  "192.0.2.1",
			"blocked.example.dbl.test.": "127.255.255.254",
			"4.3.2.10.dbl.test.":        "127.0.0.2",
		},
		map[string]bool{"broken.example.dbl.test.": true},
	)

	src := NewDNSBLSource("dbl.test.", addr, time.Second)
	assert.Equal(t, "dnsbl:dbl.test", src.Name())

	tests := []struct {
		domain  string
		matched bool
		wantErr bool
	}{
		{"listed.example", true, false},
		{"clean.example", false, false},
		{"public.example", false, false},
		{"blocked.example", false, true},
		{"broken.example", false, true},
		{"10.2.3.4", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			match, err := src.Lookup(context.Background(), tt.domain, "")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.matched, match.Matched)
			if tt.matched {
				assert.Equal(t, "dnsbl:dbl.test", match.Source)
			}
		})
	}
}

func TestDNSBLUnreachable(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	// Bound but never answered, so the query times out.
	defer pc.Close()

	src := NewDNSBLSource("dbl.test", addr, 100*time.Millisecond)
	_, err = src.Lookup(context.Background(), "listed.example", "")
	require.Error(t, err)
}
