package propagation

import "context"

// TenantDirectory answers whether two tenants may interact. The platform's
// tenant management implements this; the engine only consults it.
type TenantDirectory interface {
	CanInteract(ctx context.Context, tenantAlias, otherAlias string) (bool, error)
}

// AllowAllDirectory admits every tenant pair. It is the default when no
// directory is wired, matching a single-tenant or open deployment.
type AllowAllDirectory struct{}

func (AllowAllDirectory) CanInteract(context.Context, string, string) (bool, error) {
	return true, nil
}
