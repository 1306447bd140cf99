// Package risk adapts the external ML scoring model into a banded risk
// assessment. The adapter's only policy is thresholding; the model itself is
// an opaque collaborator behind the Scorer port.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"

	"arbiter/internal/facts"
)

// Band is the coarse bucket derived from a continuous risk score.
type Band string

const (
	BandLow    Band = "LOW"
	BandMedium Band = "MEDIUM"
	BandHigh   Band = "HIGH"
)

// Factor names one model feature contributing to the score.
type Factor struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Assessment is the banded result handed to the decision policy.
type Assessment struct {
	Score        float64  `json:"score"`
	Band         Band     `json:"band"`
	ModelVersion string   `json:"model_version"`
	TopFactors   []Factor `json:"top_factors,omitempty"`
}

// Score is the raw model output crossing the process boundary.
type Score struct {
	Value        float64
	ModelVersion string
	TopFactors   []Factor
}

// Scorer is the external scoring function. Implementations sit behind a
// network boundary with bounded latency.
type Scorer interface {
	Score(ctx context.Context, schemeID id.SchemeID, f facts.Facts) (Score, error)
}

// Thresholds maps a score to exactly one band: score < LowBelow is LOW,
// score >= HighFrom is HIGH, anything between is MEDIUM.
type Thresholds struct {
	LowBelow float64 `json:"low_below"`
	HighFrom float64 `json:"high_from"`
}

// Validate rejects threshold pairs that would make banding ambiguous.
func (t Thresholds) Validate() error {
	if t.LowBelow <= 0 || t.HighFrom >= 1 || t.LowBelow > t.HighFrom {
		return dErrors.Newf(dErrors.CodeValidation,
			"thresholds must satisfy 0 < low_below <= high_from < 1, got %.2f/%.2f", t.LowBelow, t.HighFrom)
	}
	return nil
}

// BandFor buckets a score deterministically.
func (t Thresholds) BandFor(score float64) Band {
	switch {
	case score < t.LowBelow:
		return BandLow
	case score >= t.HighFrom:
		return BandHigh
	default:
		return BandMedium
	}
}

// ThresholdStore keeps per-scheme thresholds with a configured default.
// Thresholds are administrative settings, not rule content, so they live
// outside the versioned rule store.
type ThresholdStore struct {
	mu        sync.RWMutex
	defaults  Thresholds
	perScheme map[id.SchemeID]Thresholds
}

func NewThresholdStore(defaults Thresholds) *ThresholdStore {
	return &ThresholdStore{
		defaults:  defaults,
		perScheme: make(map[id.SchemeID]Thresholds),
	}
}

func (s *ThresholdStore) Get(schemeID id.SchemeID) Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.perScheme[schemeID]; ok {
		return t
	}
	return s.defaults
}

func (s *ThresholdStore) Set(schemeID id.SchemeID, t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perScheme[schemeID] = t
	return nil
}

// Cache is an optional read-through cache for assessments; batch runs reuse a
// cached assessment instead of re-calling the model.
type Cache interface {
	Get(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID) (*Assessment, error)
	Put(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, a *Assessment) error
}

// Adapter wraps the scorer with timeouts, banding, and caching.
type Adapter struct {
	scorer     Scorer
	thresholds *ThresholdStore
	timeout    time.Duration
	cache      Cache
	logger     *slog.Logger
}

type Option func(*Adapter)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func WithCache(cache Cache) Option {
	return func(a *Adapter) { a.cache = cache }
}

func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

func New(scorer Scorer, thresholds *ThresholdStore, opts ...Option) (*Adapter, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if thresholds == nil {
		return nil, fmt.Errorf("threshold store is required")
	}
	a := &Adapter{
		scorer:     scorer,
		thresholds: thresholds,
		timeout:    3 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Assess scores the applicant and buckets the result. Failure or timeout of
// the external model yields CodeUnavailable; it is never silently defaulted
// to a band. The decision policy treats "risk unknown" as a forced route to
// an officer.
func (a *Adapter) Assess(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, f facts.Facts) (*Assessment, error) {
	if a.cache != nil {
		cached, err := a.cache.Get(ctx, schemeID, applicantID)
		if err == nil && cached != nil {
			return cached, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	score, err := a.scorer.Score(ctx, schemeID, f)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "risk scorer timed out")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "risk scorer unreachable")
	}
	if score.Value < 0 || score.Value > 1 {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"risk score %f outside [0,1]", score.Value)
	}

	assessment := &Assessment{
		Score:        score.Value,
		Band:         a.thresholds.Get(schemeID).BandFor(score.Value),
		ModelVersion: score.ModelVersion,
		TopFactors:   score.TopFactors,
	}

	if a.cache != nil {
		if err := a.cache.Put(ctx, schemeID, applicantID, assessment); err != nil && a.logger != nil {
			a.logger.WarnContext(ctx, "risk cache write failed",
				"scheme_id", schemeID, "applicant_id", applicantID, "error", err)
		}
	}
	return assessment, nil
}

// Unavailable reports whether an assessment error means "risk unknown".
func Unavailable(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeUnavailable) || dErrors.HasCode(err, dErrors.CodeTimeout)
}
