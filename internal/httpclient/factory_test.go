package httpclient

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecureClient(t *testing.T) {
	client := NewSecureClient(DefaultConfig())

	assert.NotNil(t, client)
	assert.Equal(t, 10*time.Second, client.Timeout)
}

func TestBlocksPrivateAddresses(t *testing.T) {
	client := NewSecureClient(Config{Timeout: 2 * time.Second, BlockPrivate: true})

	for _, target := range []string{
		"http://127.0.0.1/",
		"http://10.0.0.1/",
		"http://172.16.0.1/",
		"http://192.168.1.1/",
		"http://[::1]/",
		"http://localhost:8080/admin",
	} {
		resp, err := client.Get(target)
		if err == nil {
			CloseBody(resp)
			t.Fatalf("expected %s to be blocked", target)
		}
		assert.True(t, errors.Is(err, ErrBlockedAddress), "%s: %v", target, err)
	}
}

func TestAllowsPrivateWhenDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSecureClient(Config{Timeout: 2 * time.Second})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer CloseBody(resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNeverFollowsRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewSecureClient(Config{Timeout: 2 * time.Second})
	resp, err := client.Get(server.URL + "/start")
	require.NoError(t, err)
	defer CloseBody(resp)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/end", resp.Header.Get("Location"))
}

func TestUserAgentApplied(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewSecureClient(Config{Timeout: 2 * time.Second, UserAgent: "SafeLink-Test/1.0"})
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	CloseBody(resp)

	assert.Equal(t, "SafeLink-Test/1.0", got)
}

func TestSkipTLSVerify(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	strict := NewSecureClient(Config{Timeout: 2 * time.Second})
	_, err := strict.Get(server.URL)
	require.Error(t, err)

	lenient := NewSecureClient(Config{Timeout: 2 * time.Second, SkipTLSVerify: true})
	resp, err := lenient.Get(server.URL)
	require.NoError(t, err)
	CloseBody(resp)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.20.0.1", true},
		{"192.168.0.10", true},
		{"169.254.169.254", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fe80::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.private, IsPrivateIP(net.ParseIP(tt.ip)), tt.ip)
	}
}
