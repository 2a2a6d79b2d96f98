package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/echo-commerce-backend/pkg/errors"
)

type stubOwnership struct {
	err   error
	calls int
}

func (s *stubOwnership) RequireBusinessOwnership(_ context.Context, _, _ uuid.UUID) error {
	s.calls++
	return s.err
}

func ownershipRouter(checker OwnershipChecker, userID uuid.UUID, reached *uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != uuid.Nil {
				req = req.WithContext(WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.With(RequireBusinessOwnership(checker, nil)).Get("/businesses/{businessId}/orders", func(w http.ResponseWriter, req *http.Request) {
		*reached = BusinessIDFromContext(req.Context())
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestRequireBusinessOwnership(t *testing.T) {
	businessID := uuid.New()
	tests := []struct {
		name       string
		userID     uuid.UUID
		path       string
		checkerErr error
		wantStatus int
		wantCalls  int
	}{
		{"owner", uuid.New(), "/businesses/" + businessID.String() + "/orders", nil, http.StatusOK, 1},
		{"not a member", uuid.New(), "/businesses/" + businessID.String() + "/orders", pkgerrors.New(pkgerrors.CodeForbidden, "no access"), http.StatusForbidden, 1},
		{"bad business id", uuid.New(), "/businesses/nope/orders", nil, http.StatusUnprocessableEntity, 0},
		{"anonymous", uuid.Nil, "/businesses/" + businessID.String() + "/orders", nil, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &stubOwnership{err: tt.checkerErr}
			var reached uuid.UUID
			resp := httptest.NewRecorder()
			ownershipRouter(checker, tt.userID, &reached).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if resp.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d", tt.wantStatus, resp.Code)
			}
			if checker.calls != tt.wantCalls {
				t.Fatalf("expected %d ownership checks, got %d", tt.wantCalls, checker.calls)
			}
			if tt.wantStatus == http.StatusOK && reached != businessID {
				t.Fatalf("expected business %s in context, got %s", businessID, reached)
			}
			if tt.wantStatus != http.StatusOK && reached != uuid.Nil {
				t.Fatal("handler must not run when ownership fails")
			}
		})
	}
}
