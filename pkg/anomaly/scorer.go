// Package anomaly adapts an isolation-forest style model to the 0-100 scale
// used by the hybrid score.
package anomaly

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/config"
	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// Score is what a model reports for one vector. Version is optional and
// overrides Model.Version when set.
type Score struct {
	Raw       float64
	Threshold float64
	Version   string
}

// Model is any fitted anomaly detector. Implementations must be safe for
// concurrent use.
type Model interface {
	Version() string
	Score(ctx context.Context, v types.FeatureVector) (Score, error)
}

// Band is the raw score range mapped onto 0-100. Low maps to 100.
type Band struct {
	Low  float64
	High float64
}

var DefaultBand = Band{Low: -0.8, High: 0.2}

const (
	highConfidenceDecision = -0.15
)

// Scorer wraps a Model and never fails: collaborator errors produce a
// degraded result.
type Scorer struct {
	model   Model
	band    Band
	timeout time.Duration
	logger  *logger.Logger
}

// NewScorer falls back to DefaultBand when band is empty or inverted.
func NewScorer(model Model, band Band, timeout time.Duration, log *logger.Logger) *Scorer {
	log = log.WithComponent("anomaly")
	if !band.valid() {
		log.Warnw("Invalid anomaly band, using default",
			"band_low", band.Low,
			"band_high", band.High,
		)
		band = DefaultBand
	}
	return &Scorer{
		model:   model,
		band:    band,
		timeout: timeout,
		logger:  log,
	}
}

func (b Band) valid() bool {
	return b.Low < b.High && !math.IsInf(b.Low, 0) && !math.IsInf(b.High, 0)
}

// NewModel picks the model described by cfg: a remote endpoint, a model
// file, or the embedded baseline.
func NewModel(cfg config.AnomalyConfig) (Model, error) {
	switch {
	case cfg.Endpoint != "":
		return NewRemote(cfg.Endpoint, cfg.Timeout), nil
	case cfg.ModelPath != "":
		return LoadForest(cfg.ModelPath)
	default:
		return Baseline()
	}
}

// NewScorerFromConfig builds the model and the scorer in one step.
func NewScorerFromConfig(cfg config.AnomalyConfig, log *logger.Logger) (*Scorer, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomaly model: %w", err)
	}
	return NewScorer(model, Band{Low: cfg.BandLow, High: cfg.BandHigh}, cfg.Timeout, log), nil
}

func (s *Scorer) Model() Model { return s.model }

func (s *Scorer) Score(ctx context.Context, v types.FeatureVector) types.AnomalyResult {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.model.Score(ctx, v)
	if err != nil {
		s.logger.LogDegraded(ctx, "anomaly", err.Error(), "model_version", s.model.Version())
		return types.AnomalyResult{
			ModelVersion: s.model.Version(),
			Confidence:   types.ConfidenceLow,
			Degraded:     true,
		}
	}
	return s.normalize(raw)
}

func (s *Scorer) normalize(raw Score) types.AnomalyResult {
	version := raw.Version
	if version == "" {
		version = s.model.Version()
	}

	clamped := math.Max(s.band.Low, math.Min(s.band.High, raw.Raw))
	score := (s.band.High - clamped) / (s.band.High - s.band.Low) * 100
	decision := raw.Raw - raw.Threshold

	return types.AnomalyResult{
		Score:        math.Round(score*100) / 100,
		IsAnomaly:    raw.Raw < raw.Threshold,
		Raw:          raw.Raw,
		Threshold:    raw.Threshold,
		Confidence:   confidence(decision),
		ModelVersion: version,
	}
}

func confidence(decision float64) types.Confidence {
	switch {
	case decision < highConfidenceDecision:
		return types.ConfidenceHigh
	case decision < 0:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}
