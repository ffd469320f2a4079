package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Remote scores vectors with a model served over HTTP. The server receives
// the fifteen dimensions in order and by name, and answers with its raw
// score and decision threshold.
type Remote struct {
	endpoint string
	version  string
	client   *http.Client
}

type remoteRequest struct {
	Names    []string           `json:"feature_names"`
	Vector   []float64          `json:"vector"`
	Features map[string]float64 `json:"features"`
}

type remoteResponse struct {
	Raw          *float64 `json:"raw_score"`
	Threshold    float64  `json:"threshold"`
	ModelVersion string   `json:"model_version"`
}

type RemoteOption func(*Remote)

// WithHTTPClient replaces the default service client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithVersion sets the version reported before the server has answered.
func WithVersion(v string) RemoteOption {
	return func(r *Remote) { r.version = v }
}

func NewRemote(endpoint string, timeout time.Duration, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint: endpoint,
		version:  "remote",
		client:   httpclient.NewServiceClient(timeout),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Version() string { return r.version }

func (r *Remote) Score(ctx context.Context, v types.FeatureVector) (Score, error) {
	values := v.Values()
	body, err := json.Marshal(remoteRequest{
		Names:    types.FeatureNames[:],
		Vector:   values[:],
		Features: v.Map(),
	})
	if err != nil {
		return Score{}, fmt.Errorf("failed to encode vector: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Score{}, fmt.Errorf("failed to build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("model request failed: %w", err)
	}
	defer httpclient.CloseBody(resp)

	if resp.StatusCode != http.StatusOK {
		return Score{}, fmt.Errorf("model server returned %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return Score{}, fmt.Errorf("failed to decode model response: %w", err)
	}
	if out.Raw == nil {
		return Score{}, fmt.Errorf("model response has no raw_score")
	}

	return Score{Raw: *out.Raw, Threshold: out.Threshold, Version: out.ModelVersion}, nil
}
