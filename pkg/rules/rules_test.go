package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

func safeVector() types.FeatureVector {
	return types.FeatureVector{
		URLLength:     24,
		NumSubdomains: 1,
		HasHTTPS:      true,
		HasValidSSL:   true,
		DomainAgeDays: 4000,
		Indicators: types.Indicators{
			CertObserved: true,
			CertDaysLeft: 200,
		},
	}
}

func worstVector() types.FeatureVector {
	return types.FeatureVector{
		URLLength:          400,
		NumSubdomains:      6,
		HasHTTPS:           false,
		DomainAgeDays:      3,
		RedirectCount:      9,
		IsBlacklisted:      true,
		HasIPInURL:         true,
		SuspiciousPatterns: 7,
		SpecialCharCount:   20,
		NumHyphens:         9,
		PathDepth:          8,
		PctEncodedCount:    12,
		HasAtSymbol:        true,
		IsURLShortener:     true,
		Indicators: types.Indicators{
			SuspiciousTLD:       true,
			DoubleEncoding:      true,
			Punycode:            true,
			DigitsInHost:        12,
			CertObserved:        true,
			CertSelfSigned:      true,
			CertExpired:         true,
			RedirectCrossDomain: true,
			RedirectDowngrade:   true,
			RedirectCapExceeded: true,
			RedirectLoop:        true,
		},
	}
}

func TestDefaultCatalogueIsValid(t *testing.T) {
	cat := Default()
	require.NoError(t, cat.Validate())
	assert.Equal(t, DefaultVersion, cat.Version)
	assert.NotEmpty(t, cat.Rules)
}

func TestEvaluateSafeVector(t *testing.T) {
	res := Default().Evaluate(safeVector())
	assert.Zero(t, res.Score)
	assert.Empty(t, res.Triggered)
	assert.Equal(t, DefaultVersion, res.CatalogueVersion)
}

func TestEvaluateClampsToHundred(t *testing.T) {
	cat := Default()
	res := cat.Evaluate(worstVector())

	assert.Equal(t, 100.0, res.Score)

	totals := cat.CategoryTotals(res)
	assert.Equal(t, 50.0, totals[CategoryStructure])
	assert.Equal(t, 20.0, totals[CategoryDomain])
	assert.Equal(t, 20.0, totals[CategoryTLS])
	assert.Equal(t, 40.0, totals[CategoryBlacklist])
	assert.Equal(t, 20.0, totals[CategoryRedirect])
}

func TestEvaluateDefaultVector(t *testing.T) {
	// Nothing measured: unknown age, no https.
	res := Default().Evaluate(types.DefaultFeatureVector())
	assert.Equal(t, []string{"domain_age_unknown", "tls_missing"}, res.IDs())
	assert.Equal(t, 30.0, res.Score)
}

func TestEvaluateReportsDefinitionOrder(t *testing.T) {
	cat := Default()
	res := cat.Evaluate(worstVector())

	position := make(map[string]int, len(cat.Rules))
	for i, r := range cat.Rules {
		position[r.ID] = i
	}
	ids := res.IDs()
	require.NotEmpty(t, ids)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, position[ids[i-1]], position[ids[i]], "%s before %s", ids[i-1], ids[i])
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cat := Default()
	v := worstVector()
	v.URLLength = 90
	first := cat.Evaluate(v)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, cat.Evaluate(v))
	}
}

func TestEvaluateFractionalPenaltiesAreStable(t *testing.T) {
	cat, err := Default().Apply(&Overrides{Penalties: map[string]float64{
		"ip_host":            0.1,
		"domain_age_unknown": 0.2,
		"tls_missing":        0.7,
	}})
	require.NoError(t, err)

	v := types.DefaultFeatureVector()
	v.HasIPInURL = true

	scores := make(map[float64]int)
	for i := 0; i < 2000; i++ {
		scores[cat.Evaluate(v).Score]++
	}
	require.Len(t, scores, 1, "scores for one vector: %v", scores)
	assert.Equal(t, 1.0, cat.Evaluate(v).Score)
}

func TestMutuallyExclusiveTiers(t *testing.T) {
	cat := Default()

	tests := []struct {
		name    string
		mutate  func(v *types.FeatureVector)
		want    string
		notWant []string
	}{
		{
			name:    "very new domain",
			mutate:  func(v *types.FeatureVector) { v.DomainAgeDays = 10 },
			want:    "domain_age_very_new",
			notWant: []string{"domain_age_recent", "domain_age_young", "domain_age_unknown"},
		},
		{
			name:    "recent domain",
			mutate:  func(v *types.FeatureVector) { v.DomainAgeDays = 100 },
			want:    "domain_age_recent",
			notWant: []string{"domain_age_very_new", "domain_age_young"},
		},
		{
			name:    "young domain",
			mutate:  func(v *types.FeatureVector) { v.DomainAgeDays = 300 },
			want:    "domain_age_young",
			notWant: []string{"domain_age_recent"},
		},
		{
			name:    "many subdomains",
			mutate:  func(v *types.FeatureVector) { v.NumSubdomains = 4 },
			want:    "subdomains_excessive",
			notWant: []string{"subdomains_multiple"},
		},
		{
			name:    "two subdomains",
			mutate:  func(v *types.FeatureVector) { v.NumSubdomains = 2 },
			want:    "subdomains_multiple",
			notWant: []string{"subdomains_excessive"},
		},
		{
			name:    "many redirects",
			mutate:  func(v *types.FeatureVector) { v.RedirectCount = 5 },
			want:    "redirects_excessive",
			notWant: []string{"redirects_multiple"},
		},
		{
			name:    "some redirects",
			mutate:  func(v *types.FeatureVector) { v.RedirectCount = 3 },
			want:    "redirects_multiple",
			notWant: []string{"redirects_excessive"},
		},
		{
			name:    "certificate about to expire",
			mutate:  func(v *types.FeatureVector) { v.Indicators.CertDaysLeft = 5 },
			want:    "tls_expiring_very_soon",
			notWant: []string{"tls_expiring_soon", "tls_expired"},
		},
		{
			name:    "certificate expiring this month",
			mutate:  func(v *types.FeatureVector) { v.Indicators.CertDaysLeft = 20 },
			want:    "tls_expiring_soon",
			notWant: []string{"tls_expiring_very_soon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := safeVector()
			tt.mutate(&v)
			ids := cat.Evaluate(v).IDs()
			assert.Contains(t, ids, tt.want)
			for _, id := range tt.notWant {
				assert.NotContains(t, ids, id)
			}
		})
	}
}

func TestLongURLPenalty(t *testing.T) {
	cat := Default()
	rule, ok := cat.Lookup("long_url")
	require.True(t, ok)

	tests := []struct {
		length int
		want   float64
	}{
		{length: 80, want: 0},
		{length: 85, want: 3},
		{length: 100, want: 6},
		{length: 126, want: 15},
		{length: 1000, want: 15},
	}
	for _, tt := range tests {
		v := safeVector()
		v.URLLength = tt.length
		assert.Equal(t, tt.want, rule.Penalty(v), "length %d", tt.length)
	}

	// A zero penalty is not reported as a triggered rule.
	v := safeVector()
	v.URLLength = 80
	assert.NotContains(t, cat.Evaluate(v).IDs(), "long_url")
}

func TestApplyOverrides(t *testing.T) {
	base := Default()
	o, err := ParseOverrides([]byte(`
version: strict
penalties:
  blacklisted: 60
disabled:
  - tls_missing
caps:
  redirect: 30
`))
	require.NoError(t, err)

	cat, err := base.Apply(o)
	require.NoError(t, err)

	assert.Equal(t, DefaultVersion+"+strict", cat.Version)
	assert.Equal(t, 30.0, cat.Caps[CategoryRedirect])
	_, ok := cat.Lookup("tls_missing")
	assert.False(t, ok)

	v := safeVector()
	v.IsBlacklisted = true
	assert.Equal(t, 60.0, cat.Evaluate(v).Score)

	// The base catalogue is untouched.
	_, ok = base.Lookup("tls_missing")
	assert.True(t, ok)
	assert.Equal(t, 40.0, base.Evaluate(v).Score)
	assert.Equal(t, 20.0, base.Caps[CategoryRedirect])
}

func TestApplyRejectsUnknownIDs(t *testing.T) {
	cat := Default()

	_, err := cat.Apply(&Overrides{Disabled: []string{"nope"}})
	assert.Error(t, err)

	_, err = cat.Apply(&Overrides{Penalties: map[string]float64{"nope": 3}})
	assert.Error(t, err)

	_, err = cat.Apply(&Overrides{Caps: map[string]float64{"nope": 3}})
	assert.Error(t, err)

	_, err = cat.Apply(&Overrides{Penalties: map[string]float64{"ip_host": -1}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion, cat.Version)

	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disabled: [url_shortener]\n"), 0o600))
	cat, err = Load(path)
	require.NoError(t, err)
	_, ok := cat.Lookup("url_shortener")
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cat := Default()
	cat.Rules = append(cat.Rules, cat.Rules[0])
	assert.Error(t, cat.Validate())
}
