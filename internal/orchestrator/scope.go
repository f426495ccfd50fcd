package orchestrator

import (
	"context"

	"github.com/prismfeed/prism/internal/apperr"
	"github.com/prismfeed/prism/pkg/models"
)

// resolveScope converts a scope into an ordered item id list. The per-run
// limit caps every scope kind except TIMERANGE, which is bounded by its
// window instead.
func (o *Orchestrator) resolveScope(ctx context.Context, scope models.Scope, params models.RunParams) ([]int64, error) {
	if err := scope.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "invalid scope")
	}

	switch scope.Kind {
	case models.ScopeLatest:
		// A zero count is an empty scope and selects nothing.
		n := scope.Latest
		if params.Limit > 0 && params.Limit < n {
			n = params.Limit
		}
		return o.store.Items.LatestIDs(ctx, n)

	case models.ScopeFeeds:
		return o.store.Items.IDsByFeeds(ctx, scope.FeedIDs, params.Limit)

	case models.ScopeItems:
		ids := scope.ItemIDs
		if params.Limit > 0 && params.Limit < len(ids) {
			ids = ids[:params.Limit]
		}
		return o.verifyItems(ctx, ids)

	case models.ScopeTimeRange:
		// The window is the bound; the limit is deliberately ignored.
		return o.store.Items.IDsByTimeRange(ctx, *scope.From, *scope.To)

	default:
		return nil, apperr.New(apperr.KindValidation, "unknown scope kind %q", scope.Kind)
	}
}

// verifyItems keeps only ids that exist, preserving caller order.
func (o *Orchestrator) verifyItems(ctx context.Context, ids []int64) ([]int64, error) {
	verified := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, err := o.store.Items.Get(ctx, id); err != nil {
			continue
		}
		verified = append(verified, id)
	}
	return verified, nil
}

// analyzedSet returns the ids in the list that already have an analysis.
func (o *Orchestrator) analyzedSet(ctx context.Context, ids []int64) (map[int64]bool, error) {
	existing, err := o.store.Analyses.ExistingIn(ctx, ids)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]bool, len(existing))
	for _, id := range existing {
		set[id] = true
	}
	return set, nil
}
