// Package dispatch hands decided results to downstream queue consumers:
// officer worklists, the fraud review desk, and application submission.
// Delivery is at-least-once; consumers dedupe on decision id.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"arbiter/internal/decision"
	id "arbiter/pkg/domain"
)

// Envelope is the wire shape a dispatched decision travels in.
type Envelope struct {
	DecisionID    id.DecisionID   `json:"decision_id"`
	ApplicantID   id.ApplicantID  `json:"applicant_id"`
	SchemeID      id.SchemeID     `json:"scheme_id"`
	RuleVersion   int             `json:"rule_version"`
	Type          decision.Type   `json:"decision_type"`
	Status        decision.Status `json:"decision_status"`
	RoutingTarget string          `json:"routing_target"`
	DecidedAt     time.Time       `json:"decided_at"`
}

func envelopeOf(result *decision.Result) Envelope {
	return Envelope{
		DecisionID:    result.ID,
		ApplicantID:   result.ApplicantID,
		SchemeID:      result.SchemeID,
		RuleVersion:   result.RuleVersion,
		Type:          result.Type,
		Status:        result.Status,
		RoutingTarget: result.RoutingTarget,
		DecidedAt:     result.CreatedAt,
	}
}

// TopicFor maps a routing target to a broker topic name. Routing targets use
// colon-separated queue names; brokers do not accept colons in topic names.
func TopicFor(routingTarget string) string {
	return strings.ReplaceAll(routingTarget, ":", ".")
}

// InMemory records dispatched envelopes. Tests and single-node dev mode use
// it in place of a broker.
type InMemory struct {
	mu        sync.Mutex
	envelopes map[string][]Envelope
}

func NewInMemory() *InMemory {
	return &InMemory{envelopes: make(map[string][]Envelope)}
}

func (d *InMemory) Dispatch(_ context.Context, result *decision.Result) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	topic := TopicFor(result.RoutingTarget)
	d.envelopes[topic] = append(d.envelopes[topic], envelopeOf(result))
	return nil
}

// Dispatched returns the envelopes sent to one topic, in order.
func (d *InMemory) Dispatched(topic string) []Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Envelope, len(d.envelopes[topic]))
	copy(out, d.envelopes[topic])
	return out
}

func marshalEnvelope(result *decision.Result) ([]byte, error) {
	return json.Marshal(envelopeOf(result))
}
