package controllers

import (
	"net/http"

	"github.com/luxeledger/inventory-backend/api/responses"
	"github.com/luxeledger/inventory-backend/api/validators"
	"github.com/luxeledger/inventory-backend/internal/auth"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

func issuerUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
}

// AuthLogin accepts employee credentials and answers with a pending token.
func AuthLogin(svc auth.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, issuerUnavailable())
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SubmitCredentials(r.Context(), auth.SubmitRequest{
			Email:    body.Email,
			Password: body.Password,
			Kind:     enums.ActorKindEmployee,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AuthRegisterCustomer stages a customer registration. Nothing is stored until
// the emailed code is verified.
func AuthRegisterCustomer(svc auth.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, issuerUnavailable())
			return
		}

		var body auth.RegisterCustomerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SubmitCredentials(r.Context(), auth.SubmitRequest{
			Email:          body.Email,
			Password:       body.Password,
			VerifyPassword: body.VerifyPassword,
			Kind:           enums.ActorKindCustomer,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// AuthRequestCode sends (or resends) the one-time code for a pending flow.
func AuthRequestCode(svc auth.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, issuerUnavailable())
			return
		}

		var body auth.RequestCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ack, err := svc.RequestCode(r.Context(), body.PendingToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, ack)
	}
}

// AuthVerifyCode exchanges a valid code for a session.
func AuthVerifyCode(svc auth.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, issuerUnavailable())
			return
		}

		var body auth.VerifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.VerifyCode(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set(accessTokenHeader, result.AccessToken)
		responses.WriteSuccess(w, result)
	}
}

func AuthCancel(svc auth.Issuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, issuerUnavailable())
			return
		}

		var body auth.CancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Cancel(r.Context(), body.PendingToken); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}
