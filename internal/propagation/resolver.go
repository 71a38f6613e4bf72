package propagation

import (
	"context"
	"fmt"
	"slices"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
)

// Resolver evaluates propagation rules against candidate recipients.
type Resolver struct {
	directory TenantDirectory
}

// NewResolver creates a resolver backed by the given tenant directory.
// A nil directory allows all tenant pairs.
func NewResolver(directory TenantDirectory) *Resolver {
	if directory == nil {
		directory = AllowAllDirectory{}
	}
	return &Resolver{directory: directory}
}

// Allows reports whether the rules of the entity bound to ac admit the
// candidate recipient. Rules are evaluated in order; the first match
// admits. No match denies: propagation fails closed.
func (r *Resolver) Allows(ctx context.Context, ac *assoc.Context, rules []Rule, recipientID string) (bool, error) {
	for _, rule := range rules {
		ok, err := r.allowsOne(ctx, ac, rule, recipientID)
		if err != nil {
			return false, fmt.Errorf("propagation rule %q for %s: %w",
				rule.Type, ac.Entity().ID, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) allowsOne(ctx context.Context, ac *assoc.Context, rule Rule, recipientID string) (bool, error) {
	switch rule.Type {
	case RuleTypePublic:
		return true, nil

	case RuleTypeLoggedIn:
		alias, ok := activity.TenantAlias(recipientID)
		return ok && alias == rule.TenantAlias, nil

	case RuleTypeInteractingTenants:
		entityTenant, ok := activity.TenantAlias(ac.Entity().ID)
		if !ok {
			return false, nil
		}
		recipientTenant, ok := activity.TenantAlias(recipientID)
		if !ok {
			return false, nil
		}
		if entityTenant == recipientTenant {
			return true, nil
		}
		return r.directory.CanInteract(ctx, entityTenant, recipientTenant)

	case RuleTypeAssociation:
		ids, err := ac.Get(ctx, rule.Association)
		if err != nil {
			return false, err
		}
		return slices.Contains(ids, recipientID), nil

	case RuleTypeSelf:
		return recipientID == ac.Entity().ID, nil

	default:
		return false, fmt.Errorf("unknown rule type %q", rule.Type)
	}
}
