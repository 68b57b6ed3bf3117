// Package quota maps plan identifiers to record limits.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"subzone/internal/model"
)

// ErrUnknownPlan is returned for a plan id missing from a non-empty catalog.
var ErrUnknownPlan = errors.New("unknown plan")

// Catalog is the plan storage the policy reads from.
type Catalog interface {
	ListPlans(ctx context.Context) ([]model.Plan, error)
	CreatePlan(ctx context.Context, p *model.Plan) error
}

const (
	cacheTTL    = 10 * time.Minute
	catalogKey  = "catalog"
	fallbackKey = "fallback"
)

// DefaultPlans is the catalog installed on first run. Its limits double as
// the fallback table used while the catalog is empty.
func DefaultPlans() []model.Plan {
	return []model.Plan{
		{
			ID: "free", Name: "Free", Price: "$0", RecordLimit: 2, SortOrder: 0,
			Features: []string{"2 DNS Records", "A, AAAA, CNAME Support", "Basic Dashboard", "Community Support"},
		},
		{
			ID: "pro", Name: "Pro", Price: "$5/mo", RecordLimit: 50, Popular: true, SortOrder: 1,
			Features: []string{"50 DNS Records", "A, AAAA, CNAME Support", "Advanced Dashboard", "Priority Support", "API Access"},
		},
		{
			ID: "enterprise", Name: "Enterprise", Price: "$20/mo", RecordLimit: 500, SortOrder: 2,
			Features: []string{"500 DNS Records", "All Record Types", "Premium Dashboard", "24/7 Support", "API Access", "Custom Domain"},
		},
	}
}

type Policy struct {
	catalog Catalog
	cache   *cache.Cache
	loads   singleflight.Group
	log     logr.Logger
}

func New(catalog Catalog, log logr.Logger) *Policy {
	return &Policy{
		catalog: catalog,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		log:     log,
	}
}

// limits returns the plan id → limit table and whether it came from the
// catalog (false means the catalog was empty and defaults apply).
func (p *Policy) limits(ctx context.Context) (map[string]int, bool, error) {
	if v, ok := p.cache.Get(catalogKey); ok {
		return v.(map[string]int), true, nil
	}
	if v, ok := p.cache.Get(fallbackKey); ok {
		return v.(map[string]int), false, nil
	}

	// concurrent misses share one catalog read
	v, err, _ := p.loads.Do(catalogKey, func() (any, error) {
		plans, err := p.catalog.ListPlans(ctx)
		if err != nil {
			return nil, fmt.Errorf("list plans: %w", err)
		}
		if len(plans) == 0 {
			fallback := limitTable(DefaultPlans())
			p.cache.SetDefault(fallbackKey, fallback)
			return loaded{fallback, false}, nil
		}
		table := limitTable(plans)
		p.cache.SetDefault(catalogKey, table)
		return loaded{table, true}, nil
	})
	if err != nil {
		return nil, false, err
	}
	l := v.(loaded)
	return l.table, l.fromCatalog, nil
}

type loaded struct {
	table       map[string]int
	fromCatalog bool
}

func limitTable(plans []model.Plan) map[string]int {
	m := make(map[string]int, len(plans))
	for _, pl := range plans {
		m[pl.ID] = pl.RecordLimit
	}
	return m
}

// LimitFor returns the record limit conferred by planID.
func (p *Policy) LimitFor(ctx context.Context, planID string) (int, error) {
	table, fromCatalog, err := p.limits(ctx)
	if err != nil {
		return 0, err
	}
	limit, ok := table[planID]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPlan, planID)
	}
	if !fromCatalog {
		p.log.V(1).Info("plan catalog empty, using default limit", "plan", planID, "limit", limit)
	}
	return limit, nil
}

// Invalidate drops cached limits. Every plan write must call it.
func (p *Policy) Invalidate() {
	p.cache.Flush()
}

// Seed installs the default catalog when no plans exist yet.
func (p *Policy) Seed(ctx context.Context) error {
	plans, err := p.catalog.ListPlans(ctx)
	if err != nil {
		return fmt.Errorf("list plans: %w", err)
	}
	if len(plans) > 0 {
		return nil
	}

	for _, pl := range DefaultPlans() {
		if err := p.catalog.CreatePlan(ctx, &pl); err != nil {
			return fmt.Errorf("seed plan %s: %w", pl.ID, err)
		}
	}
	p.Invalidate()
	p.log.Info("seeded default plan catalog")
	return nil
}
