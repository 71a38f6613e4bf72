// Package propagation decides who is allowed to see an entity, separately
// from who the router decided is interested. A delivery survives only when
// both agree: routing answers "who wants this", propagation answers "who
// may have it".
package propagation

import (
	"context"
	"fmt"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/assoc"
)

// RuleType enumerates the propagation rule variants.
type RuleType string

const (
	// RuleTypePublic admits any recipient.
	RuleTypePublic RuleType = "public"

	// RuleTypeLoggedIn admits any principal of the named tenant.
	RuleTypeLoggedIn RuleType = "loggedin"

	// RuleTypeInteractingTenants admits recipients whose tenant is allowed
	// to interact with the entity's tenant.
	RuleTypeInteractingTenants RuleType = "interacting_tenants"

	// RuleTypeAssociation admits recipients present in a named association
	// of the entity, resolved through the associations context.
	RuleTypeAssociation RuleType = "association"

	// RuleTypeSelf admits only the entity itself.
	RuleTypeSelf RuleType = "self"
)

// Rule is one propagation rule. Rules are evaluated in order until one
// admits the recipient; an entity whose rule list admits nobody is simply
// never seen outside itself.
type Rule struct {
	Type        RuleType `json:"type"`
	TenantAlias string   `json:"tenant_alias,omitempty"`
	Association string   `json:"association,omitempty"`
}

// Public builds the rule admitting everyone.
func Public() Rule {
	return Rule{Type: RuleTypePublic}
}

// LoggedIn builds the rule admitting authenticated principals of a tenant.
func LoggedIn(tenantAlias string) Rule {
	return Rule{Type: RuleTypeLoggedIn, TenantAlias: tenantAlias}
}

// InteractingTenants builds the cross-tenant interaction rule.
func InteractingTenants() Rule {
	return Rule{Type: RuleTypeInteractingTenants}
}

// Association builds the rule admitting members of a named association.
func Association(name string) Rule {
	return Rule{Type: RuleTypeAssociation, Association: name}
}

// Self builds the rule admitting only the entity itself.
func Self() Rule {
	return Rule{Type: RuleTypeSelf}
}

// Validate checks the rule's shape.
func (r Rule) Validate() error {
	switch r.Type {
	case RuleTypePublic, RuleTypeInteractingTenants, RuleTypeSelf:
		return nil
	case RuleTypeLoggedIn:
		if r.TenantAlias == "" {
			return fmt.Errorf("loggedin rule requires a tenant alias")
		}
		return nil
	case RuleTypeAssociation:
		if r.Association == "" {
			return fmt.Errorf("association rule requires an association name")
		}
		return nil
	default:
		return fmt.Errorf("invalid propagation rule type %q", r.Type)
	}
}

// Func returns the propagation rules for one entity. Entity types may
// register one; every other entity type gets DefaultRules.
type Func func(ctx context.Context, ac *assoc.Context, entity *activity.Entity) ([]Rule, error)

// AssociationRoutes is the association consulted by the default rules.
const AssociationRoutes = "routes"

// DefaultRules derives the standard-resource propagation from the
// entity's declared visibility and joinability:
//
//	public            -> public
//	loggedin          -> loggedin(own tenant)
//	private, joinable -> interacting_tenants, routes
//	otherwise         -> routes
//
// A loggedin entity whose id carries no tenant segment falls back to
// routes rather than admitting a whole unknown tenant.
func DefaultRules(e *activity.Entity) []Rule {
	switch VisibilityOf(e) {
	case VisibilityPublic:
		return []Rule{Public()}
	case VisibilityLoggedIn:
		alias, ok := activity.TenantAlias(e.ID)
		if !ok {
			return []Rule{Association(AssociationRoutes)}
		}
		return []Rule{LoggedIn(alias)}
	default:
		if JoinableOf(e) != JoinableNo {
			return []Rule{InteractingTenants(), Association(AssociationRoutes)}
		}
		return []Rule{Association(AssociationRoutes)}
	}
}
