package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"arbiter/internal/facts"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// HTTPScorer calls the external risk-model service. The adapter supplies the
// timeout; this client only speaks the wire protocol.
type HTTPScorer struct {
	url    string
	client *http.Client
}

// NewHTTPScorer points a scorer client at the model endpoint.
func NewHTTPScorer(url string) (*HTTPScorer, error) {
	if url == "" {
		return nil, fmt.Errorf("scorer url is required")
	}
	return &HTTPScorer{url: url, client: &http.Client{}}, nil
}

type scoreRequest struct {
	SchemeID string         `json:"scheme_id"`
	Facts    map[string]any `json:"facts"`
}

type scoreResponse struct {
	Score        float64  `json:"score"`
	ModelVersion string   `json:"model_version"`
	TopFactors   []Factor `json:"top_factors"`
}

// Score posts the facts to the model and decodes its score. Transport
// failures and non-200 statuses surface as CodeUnavailable so the decision
// policy treats them as "risk unknown".
func (s *HTTPScorer) Score(ctx context.Context, schemeID id.SchemeID, f facts.Facts) (Score, error) {
	payload, err := json.Marshal(scoreRequest{
		SchemeID: schemeID.String(),
		Facts:    f.Activation(),
	})
	if err != nil {
		return Score{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode scoring request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return Score{}, dErrors.Wrap(err, dErrors.CodeInternal, "build scoring request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Score{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "risk scorer unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Score{}, dErrors.Newf(dErrors.CodeUnavailable, "risk scorer returned %d", resp.StatusCode)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Score{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "malformed scoring response")
	}
	return Score{
		Value:        decoded.Score,
		ModelVersion: decoded.ModelVersion,
		TopFactors:   decoded.TopFactors,
	}, nil
}
