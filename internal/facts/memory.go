package facts

import (
	"context"
	"sync"

	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

type profileKey struct {
	applicant id.ApplicantID
	scheme    id.SchemeID
}

// InMemoryProvider holds fact profiles keyed by applicant+scheme. Used in
// tests and local development in place of the golden-record system.
type InMemoryProvider struct {
	mu        sync.RWMutex
	profiles  map[profileKey]Facts
	districts map[profileKey]string
}

func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		profiles:  make(map[profileKey]Facts),
		districts: make(map[profileKey]string),
	}
}

// Put registers a fact profile. The district may be empty.
func (p *InMemoryProvider) Put(applicantID id.ApplicantID, schemeID id.SchemeID, district string, f Facts) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := profileKey{applicant: applicantID, scheme: schemeID}
	p.profiles[key] = f
	p.districts[key] = district
}

func (p *InMemoryProvider) GetFacts(_ context.Context, applicantID id.ApplicantID, schemeID id.SchemeID) (Facts, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.profiles[profileKey{applicant: applicantID, scheme: schemeID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	// Copy so callers cannot mutate the stored profile.
	out := make(Facts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out, nil
}

func (p *InMemoryProvider) ListApplicants(_ context.Context, schemeID id.SchemeID, district string) ([]id.ApplicantID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []id.ApplicantID
	for key := range p.profiles {
		if key.scheme != schemeID {
			continue
		}
		if district != "" && p.districts[key] != district {
			continue
		}
		out = append(out, key.applicant)
	}
	return out, nil
}
