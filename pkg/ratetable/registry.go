package ratetable

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Registry holds every known table version per scheme.
type Registry struct {
	tables map[models.Scheme][]Table
}

func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[models.Scheme][]Table)}
	seen := map[string]bool{}
	for _, t := range tables {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.Version] {
			return nil, fmt.Errorf("duplicate rate table version %s", t.Version)
		}
		seen[t.Version] = true
		r.tables[t.Scheme] = append(r.tables[t.Scheme], t)
	}
	for scheme := range r.tables {
		versions := r.tables[scheme]
		sort.SliceStable(versions, func(i, j int) bool {
			return versions[i].EffectiveFrom.Before(versions[j].EffectiveFrom)
		})
	}
	return r, nil
}

// Resolve returns the newest table for scheme effective at the given time.
func (r *Registry) Resolve(scheme models.Scheme, at time.Time) (Table, error) {
	versions, ok := r.tables[scheme]
	if !ok || len(versions) == 0 {
		return Table{}, &apperrors.UnknownSchemeError{Scheme: string(scheme)}
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].EffectiveFrom.After(at) {
			return versions[i], nil
		}
	}
	return Table{}, apperrors.NewInvalidInput("occurred_at", "no %s rate table is effective at %s", scheme, at.Format(time.RFC3339))
}

// Versions lists table versions for scheme, oldest first.
func (r *Registry) Versions(scheme models.Scheme) []string {
	out := make([]string, 0, len(r.tables[scheme]))
	for _, t := range r.tables[scheme] {
		out = append(out, t.Version)
	}
	return out
}
