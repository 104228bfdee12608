package middleware

import (
	"net/http"

	"github.com/luxeledger/inventory-backend/api/responses"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

// RequireKind rejects actors whose token was not issued for kind.
func RequireKind(kind enums.ActorKind, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorKindFromContext(r.Context()) != kind {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, string(kind)+" access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
