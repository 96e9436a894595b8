package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/escrow-backend/api/responses"
	"github.com/angelmondragon/escrow-backend/internal/ledger"
	pkgAuth "github.com/angelmondragon/escrow-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/escrow-backend/pkg/errors"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

// Caller returns the authenticated party behind the request.
func Caller(r *http.Request) (ledger.Party, error) {
	principal, ok := pkgAuth.PrincipalFromContext(r.Context())
	if !ok || principal.UserID == uuid.Nil {
		return ledger.Party{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return ledger.Party{ID: principal.UserID, Role: principal.Role}, nil
}

// partyHandler resolves the caller, runs fn and writes its result with
// status. When ready is false the service was never wired and fn is not
// called.
func partyHandler(logg *logger.Logger, ready bool, service string, status int, fn func(r *http.Request, caller ledger.Party) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !ready {
			responses.WriteError(ctx, logg, w, pkgerrors.Newf(pkgerrors.CodeInternal, "%s service unavailable", service))
			return
		}
		caller, err := Caller(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := fn(r, caller)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}
