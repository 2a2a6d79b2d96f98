package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/echo-commerce-backend/api/responses"
	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
	"github.com/angelmondragon/echo-commerce-backend/pkg/logger"
)

type OwnershipChecker interface {
	RequireBusinessOwnership(ctx context.Context, userID, businessID uuid.UUID) error
}

// RequireBusinessOwnership resolves the {businessId} URL parameter and
// rejects the request unless the authenticated user may act for it. It runs
// before any handler reads order state.
func RequireBusinessOwnership(checker OwnershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ownership checker unavailable"))
				return
			}

			userID := UserIDFromContext(ctx)
			if userID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}

			raw := strings.TrimSpace(chi.URLParam(r, "businessId"))
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "business id is required"))
				return
			}
			businessID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid business id"))
				return
			}

			if err := checker.RequireBusinessOwnership(ctx, userID, businessID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithBusinessID(ctx, businessID)
			if logg != nil {
				ctx = logg.WithBusinessID(ctx, businessID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
