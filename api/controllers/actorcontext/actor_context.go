package actorcontext

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/sokolink-backend/api/middleware"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Resolve extracts the caller placed on the context by the auth middleware.
func Resolve(r *http.Request) (Actor, error) {
	ctx := r.Context()
	raw := middleware.UserIDFromContext(ctx)
	if raw == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role := enums.UserRole(middleware.RoleFromContext(ctx))
	if !role.IsValid() {
		return Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "role missing")
	}
	return Actor{UserID: userID, Role: role}, nil
}
