package businesses

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

type accessChecker interface {
	HasAccess(ctx context.Context, businessID, userID uuid.UUID) (bool, error)
}

// Ownership enforces that an actor may operate on a business. It fails closed:
// lookup errors deny access.
type Ownership struct {
	repo accessChecker
}

func NewOwnership(repo accessChecker) *Ownership {
	return &Ownership{repo: repo}
}

func (o *Ownership) RequireBusinessOwnership(ctx context.Context, userID, businessID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if businessID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "business context missing")
	}
	ok, err := o.repo.HasAccess(ctx, businessID, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "business access could not be verified")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "no access to this business")
	}
	return nil
}
