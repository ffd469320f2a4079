package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

type fixedModel struct {
	score Score
	err   error
}

func (m fixedModel) Version() string { return "fixed-1" }

func (m fixedModel) Score(ctx context.Context, v types.FeatureVector) (Score, error) {
	return m.score, m.err
}

func quietLogger() *logger.Logger {
	core, _ := observer.New(zapcore.DebugLevel)
	return logger.NewFromCore(core)
}

func benignVector() types.FeatureVector {
	return types.FeatureVector{
		URLLength:     24,
		NumSubdomains: 1,
		HasHTTPS:      true,
		HasValidSSL:   true,
		DomainAgeDays: 4000,
	}
}

func hostileVector() types.FeatureVector {
	return types.FeatureVector{
		URLLength:          400,
		NumSubdomains:      6,
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
	}
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(0))
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 1.0, averagePathLength(2))
	assert.InDelta(t, 1.2075, averagePathLength(3), 1e-3)
	assert.InDelta(t, 10.2448, averagePathLength(256), 1e-3)
}

func TestForestSingleSplit(t *testing.T) {
	// psi=2 and every leaf sits at depth one with one sample, so the mean
	// path length equals c(2) and the raw score is -2^-1.
	model := `{
		"version": "tiny",
		"features": ` + featureNamesJSON(t) + `,
		"scaler": {"min": ` + zeros() + `, "scale": ` + ones() + `},
		"max_samples": 2,
		"offset": -0.6,
		"trees": [{"nodes": [
			{"feature": 0, "threshold": 10, "left": 1, "right": 2},
			{"feature": -1, "left": -1, "right": -1, "size": 1},
			{"feature": -1, "left": -1, "right": -1, "size": 1}
		]}]
	}`

	f, err := ParseForest([]byte(model))
	require.NoError(t, err)
	assert.Equal(t, "tiny", f.Version())

	s, err := f.Score(context.Background(), benignVector())
	require.NoError(t, err)
	assert.InDelta(t, -0.5, s.Raw, 1e-9)
	assert.Equal(t, -0.6, s.Threshold)
}

func TestBaselineSeparatesBenignFromHostile(t *testing.T) {
	f, err := Baseline()
	require.NoError(t, err)
	assert.NotEmpty(t, f.Version())
	assert.Equal(t, 5, f.Trees())

	benign, err := f.Score(context.Background(), benignVector())
	require.NoError(t, err)
	hostile, err := f.Score(context.Background(), hostileVector())
	require.NoError(t, err)

	assert.Less(t, hostile.Raw, benign.Raw)
	assert.Greater(t, benign.Raw, benign.Threshold)
	assert.Less(t, hostile.Raw, hostile.Threshold)

	s := NewScorer(f, DefaultBand, time.Second, quietLogger())
	res := s.Score(context.Background(), hostileVector())
	assert.True(t, res.IsAnomaly)
	assert.Equal(t, types.ConfidenceHigh, res.Confidence)
	assert.False(t, res.Degraded)

	res = s.Score(context.Background(), benignVector())
	assert.False(t, res.IsAnomaly)
	assert.Equal(t, types.ConfidenceLow, res.Confidence)
}

func TestForestIsDeterministic(t *testing.T) {
	f, err := Baseline()
	require.NoError(t, err)

	first, err := f.Score(context.Background(), hostileVector())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := f.Score(context.Background(), hostileVector())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParseForestRejectsBadModels(t *testing.T) {
	tests := []struct {
		name  string
		model string
	}{
		{name: "not json", model: "{"},
		{name: "wrong features", model: `{"features": ["a"]}`},
		{
			name: "backward child",
			model: `{"features": ` + featureNamesJSON(t) + `,
				"scaler": {"min": ` + zeros() + `, "scale": ` + ones() + `},
				"max_samples": 8,
				"trees": [{"nodes": [{"feature": 0, "threshold": 1, "left": 0, "right": 0}]}]}`,
		},
		{
			name: "no trees",
			model: `{"features": ` + featureNamesJSON(t) + `,
				"scaler": {"min": ` + zeros() + `, "scale": ` + ones() + `},
				"max_samples": 8, "trees": []}`,
		},
		{
			name: "short scaler",
			model: `{"features": ` + featureNamesJSON(t) + `,
				"scaler": {"min": [0], "scale": [1]}, "max_samples": 8}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseForest([]byte(tt.model))
			assert.Error(t, err)
		})
	}
}

func TestLoadForestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, baselineModel, 0o600))

	f, err := LoadForest(path)
	require.NoError(t, err)
	assert.Equal(t, 5, f.Trees())

	_, err = LoadForest(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestScorerNormalization(t *testing.T) {
	tests := []struct {
		name       string
		raw        float64
		threshold  float64
		wantScore  float64
		wantAnom   bool
		wantConfid types.Confidence
	}{
		{name: "band top", raw: 0.2, threshold: -0.5, wantScore: 0, wantConfid: types.ConfidenceLow},
		{name: "above band clamps", raw: 0.9, threshold: -0.5, wantScore: 0, wantConfid: types.ConfidenceLow},
		{name: "band bottom", raw: -0.8, threshold: -0.5, wantScore: 100, wantAnom: true, wantConfid: types.ConfidenceHigh},
		{name: "below band clamps", raw: -3, threshold: -0.5, wantScore: 100, wantAnom: true, wantConfid: types.ConfidenceHigh},
		{name: "midpoint", raw: -0.3, threshold: -0.5, wantScore: 50, wantConfid: types.ConfidenceLow},
		{name: "just anomalous", raw: -0.55, threshold: -0.5, wantScore: 75, wantAnom: true, wantConfid: types.ConfidenceMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(fixedModel{score: Score{Raw: tt.raw, Threshold: tt.threshold}}, DefaultBand, 0, quietLogger())
			res := s.Score(context.Background(), benignVector())

			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Equal(t, tt.wantAnom, res.IsAnomaly)
			assert.Equal(t, tt.wantConfid, res.Confidence)
			assert.Equal(t, "fixed-1", res.ModelVersion)
			assert.False(t, res.Degraded)
			assert.GreaterOrEqual(t, res.Score, 0.0)
			assert.LessOrEqual(t, res.Score, 100.0)
		})
	}
}

func TestScorerRejectsEmptyBand(t *testing.T) {
	for _, band := range []Band{{Low: 0.2, High: 0.2}, {Low: 0.5, High: -0.5}, {}} {
		core, logs := observer.New(zapcore.DebugLevel)
		s := NewScorer(fixedModel{score: Score{Raw: -0.3, Threshold: -0.5}}, band, 0, logger.NewFromCore(core))

		res := s.Score(context.Background(), benignVector())
		assert.InDelta(t, 50, res.Score, 1e-9, "band %+v", band)
		assert.Equal(t, 1, logs.FilterMessage("Invalid anomaly band, using default").Len())
	}
}

func TestScorerDegradesOnModelError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewScorer(fixedModel{err: errors.New("model offline")}, DefaultBand, 0, logger.NewFromCore(core))

	res := s.Score(context.Background(), benignVector())

	assert.True(t, res.Degraded)
	assert.Zero(t, res.Score)
	assert.False(t, res.IsAnomaly)
	assert.Equal(t, "fixed-1", res.ModelVersion)
	assert.Equal(t, 1, logs.FilterMessage("Signal degraded to default").Len())
}

func TestRemoteModel(t *testing.T) {
	var got remoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"raw_score": -0.62, "threshold": -0.5, "model_version": "srv-7"}`))
	}))
	defer server.Close()

	remote := NewRemote(server.URL, time.Second, WithHTTPClient(server.Client()))
	s := NewScorer(remote, DefaultBand, time.Second, quietLogger())
	res := s.Score(context.Background(), hostileVector())

	require.False(t, res.Degraded)
	assert.InDelta(t, -0.62, res.Raw, 1e-9)
	assert.True(t, res.IsAnomaly)
	assert.Equal(t, types.ConfidenceMedium, res.Confidence)
	assert.Equal(t, "srv-7", res.ModelVersion)
	assert.InDelta(t, 82, res.Score, 1e-9)

	require.Len(t, got.Vector, types.FeatureCount)
	assert.Equal(t, types.FeatureNames[:], got.Names)
	assert.Equal(t, 400.0, got.Vector[0])
	assert.Equal(t, 1.0, got.Features["is_blacklisted"])
}

func TestRemoteModelFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "missing raw score",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"threshold": -0.5}`))
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "too slow",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(300 * time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			remote := NewRemote(server.URL, time.Second, WithVersion("srv"))
			s := NewScorer(remote, DefaultBand, 100*time.Millisecond, quietLogger())
			res := s.Score(context.Background(), benignVector())

			assert.True(t, res.Degraded)
			assert.Equal(t, "srv", res.ModelVersion)
		})
	}
}

func TestNewModelFromConfig(t *testing.T) {
	m, err := NewModel(config.AnomalyConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Forest{}, m)

	m, err = NewModel(config.AnomalyConfig{Endpoint: "http://127.0.0.1:1/score", Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, m)

	_, err = NewScorerFromConfig(config.AnomalyConfig{ModelPath: "/nonexistent/model.json"}, quietLogger())
	assert.Error(t, err)
}

func featureNamesJSON(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(types.FeatureNames)
	require.NoError(t, err)
	return string(b)
}

func zeros() string { return repeat("0") }

func ones() string { return repeat("1") }

func repeat(v string) string {
	out := "["
	for i := 0; i < types.FeatureCount; i++ {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out + "]"
}
