package facts

import (
	"context"
	"errors"
	"testing"

	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

func TestInMemoryProvider(t *testing.T) {
	ctx := context.Background()
	scheme := id.NewSchemeID()
	applicant := id.NewApplicantID()

	p := NewInMemoryProvider()
	p.Put(applicant, scheme, "north", Facts{"income": Number(50000)})

	t.Run("unknown applicant is not found", func(t *testing.T) {
		_, err := p.GetFacts(ctx, id.NewApplicantID(), scheme)
		if !errors.Is(err, sentinel.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("callers cannot mutate the stored profile", func(t *testing.T) {
		f, err := p.GetFacts(ctx, applicant, scheme)
		if err != nil {
			t.Fatalf("get facts: %v", err)
		}
		f["income"] = Number(0)

		again, err := p.GetFacts(ctx, applicant, scheme)
		if err != nil {
			t.Fatalf("get facts: %v", err)
		}
		if got := again["income"].Num; got != 50000 {
			t.Fatalf("stored profile mutated, income = %v", got)
		}
	})

	t.Run("list filters by district", func(t *testing.T) {
		south := id.NewApplicantID()
		p.Put(south, scheme, "south", Facts{"income": Number(20000)})

		ids, err := p.ListApplicants(ctx, scheme, "south")
		if err != nil {
			t.Fatalf("list applicants: %v", err)
		}
		if len(ids) != 1 || ids[0] != south {
			t.Fatalf("expected only the south applicant, got %v", ids)
		}
	})
}
