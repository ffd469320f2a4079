package anomaly

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

//go:embed baseline.json
var baselineModel []byte

const eulerGamma = 0.5772156649

// Forest evaluates a fitted isolation forest. It only reads its parameters
// after loading, so one value can serve any number of concurrent scans.
type Forest struct {
	version    string
	scaleMin   []float64
	scale      []float64
	maxSamples int
	offset     float64
	trees      []tree
	norm       float64
}

type forestFile struct {
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Scaler   struct {
		Min   []float64 `json:"min"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	MaxSamples int     `json:"max_samples"`
	Offset     float64 `json:"offset"`
	Trees      []tree  `json:"trees"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

// node is a leaf when Left is negative.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

// Baseline returns the model compiled into the binary.
func Baseline() (*Forest, error) {
	return ParseForest(baselineModel)
}

// LoadForest reads a serialized forest from path.
func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	return ParseForest(data)
}

func ParseForest(data []byte) (*Forest, error) {
	var f forestFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	if len(f.Features) != types.FeatureCount {
		return nil, fmt.Errorf("model expects %d features, vector has %d", len(f.Features), types.FeatureCount)
	}
	for i, name := range f.Features {
		if name != types.FeatureNames[i] {
			return nil, fmt.Errorf("model feature %d is %q, want %q", i, name, types.FeatureNames[i])
		}
	}
	if len(f.Scaler.Min) != types.FeatureCount || len(f.Scaler.Scale) != types.FeatureCount {
		return nil, fmt.Errorf("scaler must have %d entries", types.FeatureCount)
	}
	if f.MaxSamples < 2 {
		return nil, fmt.Errorf("max_samples must be at least 2, got %d", f.MaxSamples)
	}
	if len(f.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	for i, t := range f.Trees {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	return &Forest{
		version:    f.Version,
		scaleMin:   f.Scaler.Min,
		scale:      f.Scaler.Scale,
		maxSamples: f.MaxSamples,
		offset:     f.Offset,
		trees:      f.Trees,
		norm:       averagePathLength(f.MaxSamples),
	}, nil
}

func (f *Forest) Version() string { return f.version }

func (f *Forest) Trees() int { return len(f.trees) }

// Score returns the raw isolation score, which is lower for more anomalous
// inputs, and the decision threshold of the fitted model.
func (f *Forest) Score(ctx context.Context, v types.FeatureVector) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{}, err
	}

	x := f.transform(v)
	var total float64
	for _, t := range f.trees {
		total += t.pathLength(x)
	}
	mean := total / float64(len(f.trees))

	return Score{
		Raw:       -math.Pow(2, -mean/f.norm),
		Threshold: f.offset,
	}, nil
}

func (f *Forest) transform(v types.FeatureVector) []float64 {
	values := v.Values()
	x := make([]float64, types.FeatureCount)
	for i, raw := range values {
		x[i] = raw*f.scale[i] + f.scaleMin[i]
	}
	return x
}

func (t tree) pathLength(x []float64) float64 {
	idx, depth := 0, 0
	for {
		n := t.Nodes[idx]
		if n.Left < 0 {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
		depth++
	}
}

// validate guarantees pathLength terminates: children always point forward.
func (t tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Left < 0 {
			if n.Size < 1 {
				return fmt.Errorf("leaf %d has size %d", i, n.Size)
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= types.FeatureCount {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
	}
	return nil
}

// averagePathLength is the expected path length of an unsuccessful search in
// a binary search tree of n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
