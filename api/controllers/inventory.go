package controllers

import (
	"net/http"

	"github.com/luxeledger/inventory-backend/api/middleware"
	"github.com/luxeledger/inventory-backend/api/responses"
	"github.com/luxeledger/inventory-backend/api/validators"
	"github.com/luxeledger/inventory-backend/internal/ledger"
	"github.com/luxeledger/inventory-backend/pkg/enums"
	pkgerrors "github.com/luxeledger/inventory-backend/pkg/errors"
	"github.com/luxeledger/inventory-backend/pkg/logger"
)

func ledgerUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable")
}

// InventoryList returns every live block, brand by brand, newest first within a brand.
func InventoryList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		items, err := svc.ListInventory(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, items)
	}
}

func InventoryAppend(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		var body ledger.AppendRecordRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		block, err := svc.AppendRecord(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, block)
	}
}

// InventorySell marks an item sold. Customers can only buy for themselves, so
// their own email replaces whatever the body carried.
func InventorySell(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		uid, err := validators.ParseUIDParam(r, "uid")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ledger.SellRequest
		if middleware.ActorKindFromContext(r.Context()) == enums.ActorKindCustomer {
			body.CustomerEmail = middleware.EmailFromContext(r.Context())
		} else if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		block, err := svc.Sell(r.Context(), uid, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, block)
	}
}

func InventoryReserve(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		uid, err := validators.ParseUIDParam(r, "uid")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body ledger.ReserveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		block, err := svc.Reserve(r.Context(), uid, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, block)
	}
}

// InventoryHistory lists the lineage of an item, current block first.
func InventoryHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		uid, err := validators.ParseUIDParam(r, "uid")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), uid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, history)
	}
}

func InventoryVerify(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, ledgerUnavailable())
			return
		}

		report, err := svc.Verify(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, report)
	}
}
