// Package tenant resolves which board/employer/toli triple a caller acts as.
// The caller identity travels in the request context.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log"

	"recon-service/internal/models"
)

var (
	ErrNoUser           = errors.New("no caller identity in context")
	ErrNoTenantAccess   = errors.New("user has no tenant access (board/employer/toli) assigned")
	ErrNoWriteAccess    = errors.New("user has tenant access but none with write permission")
	ErrIncompleteTenant = errors.New("user tenant access missing board or employer")
)

// Scope is the tenant triple every read and write is confined to.
type Scope struct {
	BoardID    int64
	EmployerID int64
	ToliID     *int64
	CanWrite   bool
}

func (s Scope) String() string {
	if s.ToliID == nil {
		return fmt.Sprintf("board=%d employer=%d toli=-", s.BoardID, s.EmployerID)
	}
	return fmt.Sprintf("board=%d employer=%d toli=%d", s.BoardID, s.EmployerID, *s.ToliID)
}

// Resolver is the collaborator that maps the caller to a tenant scope.
//
//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=scope.go Resolver
type Resolver interface {
	// Resolve returns the first accessible tenant, read or write.
	Resolve(ctx context.Context) (Scope, error)
	// ResolveWritable returns the first tenant the caller may write to.
	ResolveWritable(ctx context.Context) (Scope, error)
}

type userKey struct{}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func UserFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey{}).(string)
	return v, ok && v != ""
}

// GrantSource loads the grants of a user, highest priority first.
type GrantSource interface {
	GrantsForUser(ctx context.Context, userID string) ([]models.TenantGrant, error)
}

// GrantResolver resolves scopes from stored tenant grants.
type GrantResolver struct {
	grants GrantSource
}

func NewGrantResolver(grants GrantSource) *GrantResolver {
	return &GrantResolver{grants: grants}
}

func (r *GrantResolver) Resolve(ctx context.Context) (Scope, error) {
	all, err := r.load(ctx)
	if err != nil {
		return Scope{}, err
	}
	return toScope(all[0])
}

func (r *GrantResolver) ResolveWritable(ctx context.Context) (Scope, error) {
	all, err := r.load(ctx)
	if err != nil {
		return Scope{}, err
	}
	log.Printf("[tenant] upload tenant access count=%d", len(all))
	for _, g := range all {
		if g.CanWrite {
			return toScope(g)
		}
	}
	return Scope{}, ErrNoWriteAccess
}

func (r *GrantResolver) load(ctx context.Context) ([]models.TenantGrant, error) {
	userID, ok := UserFrom(ctx)
	if !ok {
		return nil, ErrNoUser
	}
	all, err := r.grants.GrantsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tenant grants: %w", err)
	}
	if len(all) == 0 {
		return nil, ErrNoTenantAccess
	}
	return all, nil
}

func toScope(g models.TenantGrant) (Scope, error) {
	if g.BoardID == nil || g.EmployerID == nil {
		return Scope{}, ErrIncompleteTenant
	}
	return Scope{
		BoardID:    *g.BoardID,
		EmployerID: *g.EmployerID,
		ToliID:     g.ToliID,
		CanWrite:   g.CanWrite,
	}, nil
}

// IsAccessError reports whether err is one of the tenant access failures.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrNoUser) ||
		errors.Is(err, ErrNoTenantAccess) ||
		errors.Is(err, ErrNoWriteAccess) ||
		errors.Is(err, ErrIncompleteTenant)
}
