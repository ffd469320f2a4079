package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/urlnorm"
)

func analyze(t *testing.T, raw string) Result {
	t.Helper()
	target, err := urlnorm.Normalize(raw)
	require.NoError(t, err)

	out := NewAnalyzer(config.StructureConfig{}).Analyze(target)
	assert.False(t, out.Degraded)
	return out.Value
}

func TestAnalyzeBenignURL(t *testing.T) {
	r := analyze(t, "https://www.example.com/docs/guide")

	assert.Equal(t, len("https://www.example.com/docs/guide"), r.URLLength)
	assert.Equal(t, 1, r.NumSubdomains)
	assert.False(t, r.HasIP)
	assert.Equal(t, 0, r.KeywordCount)
	assert.Equal(t, 1, r.PathDepth)
	assert.Equal(t, 0, r.SpecialChars)
	assert.False(t, r.HasAtSymbol)
	assert.False(t, r.Shortener)
	assert.False(t, r.SuspiciousTLD)
}

func TestAnalyzePhishingURL(t *testing.T) {
	raw := "http://secure-login.paypal.verify-account.example.tk/a/b/c?x=%2541&y=%20%20"
	r := analyze(t, raw)

	assert.Equal(t, 3, r.NumSubdomains)
	assert.ElementsMatch(t, []string{"login", "verify", "account", "secure", "paypal"}, r.MatchedKeywords)
	assert.Equal(t, 5, r.KeywordCount)
	assert.True(t, r.SuspiciousTLD)
	assert.Equal(t, 2, r.Hyphens)
	assert.Equal(t, 2, r.PathDepth)
	assert.Equal(t, 3, r.PctEncoded)
	assert.True(t, r.DoubleEncoding)
	// ? is not counted; = and & and % are.
	assert.Equal(t, 6, r.SpecialChars)
}

func TestAnalyzeIPHost(t *testing.T) {
	r := analyze(t, "http://192.168.10.1/login")

	assert.True(t, r.HasIP)
	assert.Equal(t, 0, r.NumSubdomains)
	assert.Equal(t, 9, r.DigitsInHost)
}

func TestAnalyzeAuthorityTricks(t *testing.T) {
	r := analyze(t, "https://www.paypal.com@xn--pypal-4ve.com/")
	assert.True(t, r.HasAtSymbol)
	assert.True(t, r.Punycode)

	r = analyze(t, "https://bit.ly/3abcde")
	assert.True(t, r.Shortener)
}

func TestAnalyzerOverrides(t *testing.T) {
	a := NewAnalyzer(config.StructureConfig{
		Keywords:       []string{"Invoice"},
		SuspiciousTLDs: []string{"zip"},
		Shorteners:     []string{"lnk.example"},
	})

	target, err := urlnorm.Normalize("https://lnk.example.zip/invoice")
	require.NoError(t, err)

	r := a.Analyze(target).Value
	assert.Equal(t, []string{"invoice"}, r.MatchedKeywords)
	assert.True(t, r.SuspiciousTLD)
	assert.False(t, r.Shortener)
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	raw := "https://account-update.example.xyz/verify?id=1&token=abc"
	assert.Equal(t, analyze(t, raw), analyze(t, raw))
}
