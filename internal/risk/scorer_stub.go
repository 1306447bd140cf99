package risk

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"arbiter/internal/facts"
	id "arbiter/pkg/domain"
)

// StubScorer is the dev-mode scorer used when no model endpoint is
// configured. It derives a stable pseudo-score from the facts so repeated
// evaluations of the same applicant stay deterministic.
type StubScorer struct{}

func (StubScorer) Score(_ context.Context, schemeID id.SchemeID, f facts.Facts) (Score, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(schemeID.String()))

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(h, "%s=%v;", k, f[k].Native())
	}

	return Score{
		Value:        float64(h.Sum64()%1000) / 1000,
		ModelVersion: "stub",
	}, nil
}
