package handler

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/payflow/internal/domain/order"
	"github.com/xenking/payflow/internal/domain/payment"
	"github.com/xenking/payflow/internal/gateway"
)

// writeDomainError maps a domain error onto its stable HTTP response
// category. Distinct error kinds keep distinct status codes so API clients
// can branch on them.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, payment.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, payment.ErrNotOrderOwner):
		writeError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, payment.ErrWebhookAuthenticity):
		writeError(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrNegativeTotal),
		errors.Is(err, payment.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, payment.ErrOrderAlreadyPaid),
		errors.Is(err, order.ErrHasLivePayment),
		errors.Is(err, order.ErrNumberCollision),
		errors.Is(err, order.ErrTerminalStatus),
		errors.Is(err, payment.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())

	default:
		writeTypedError(w, err)
	}
}

func writeTypedError(w http.ResponseWriter, err error) {
	var (
		invalidItem  *order.InvalidItemError
		invalidState *payment.InvalidStateError
		unsupported  *gateway.UnsupportedProviderError
		gatewayErr   *gateway.Error
	)
	switch {
	case errors.As(err, &invalidItem):
		writeError(w, http.StatusBadRequest, invalidItem.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, unsupported.Error())
	case errors.As(err, &invalidState):
		writeError(w, http.StatusConflict, invalidState.Error())
	case errors.As(err, &gatewayErr):
		writeError(w, http.StatusBadGateway, gatewayErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
