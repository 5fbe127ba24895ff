package gateway

import (
	"errors"
	"net/http"

	"github.com/clearaudio/gateway/internal/pkg/billing"
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/clearaudio/gateway/internal/pkg/processing"
	"github.com/clearaudio/gateway/internal/pkg/share"
	"github.com/clearaudio/gateway/internal/pkg/usage"
)

// Problem is the HTTP view of an error.
type Problem struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

// Classify maps an error from any gateway component to a Problem.
func Classify(err error) Problem {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denialProblem(denied.Admission)
	}

	var je *processing.JobError
	if errors.As(err, &je) {
		switch je.Kind {
		case processing.KindValidation:
			return Problem{http.StatusBadRequest, "VALIDATION_ERROR", je.Err.Error()}
		case processing.KindIncomplete:
			return Problem{http.StatusBadGateway, "UPSTREAM_INCOMPLETE", "The separation service returned an incomplete result"}
		case processing.KindUpstream:
			return Problem{http.StatusBadGateway, "UPSTREAM_ERROR", "The separation service failed to process the audio"}
		case processing.KindTimeout:
			return Problem{http.StatusGatewayTimeout, "TIMEOUT", "Processing did not finish in time"}
		case processing.KindStorage:
			return Problem{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Output storage is unavailable"}
		}
	}

	switch {
	case errors.Is(err, usage.ErrStoreUnavailable), errors.Is(err, share.ErrStore):
		return Problem{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable"}
	case errors.Is(err, share.ErrNotFound):
		return Problem{http.StatusNotFound, "NOT_FOUND", "Share not found"}
	case errors.Is(err, billing.ErrSignatureInvalid):
		return Problem{http.StatusBadRequest, "INVALID_SIGNATURE", "Invalid webhook signature"}
	case errors.Is(err, billing.ErrIncompleteEvent):
		return Problem{http.StatusBadRequest, "INVALID_EVENT", err.Error()}
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return Problem{http.StatusConflict, "ALREADY_SUBSCRIBED", "You already have an active Pro subscription"}
	case errors.Is(err, billing.ErrNoBillingAccount):
		return Problem{http.StatusNotFound, "NO_BILLING_ACCOUNT", "No billing account found"}
	case errors.Is(err, billing.ErrPriceNotConfigured):
		return Problem{http.StatusServiceUnavailable, "BILLING_UNAVAILABLE", "Billing is not configured"}
	case errors.Is(err, entitlements.ErrUnknownPlan):
		return Problem{http.StatusInternalServerError, "INTERNAL_ERROR", "Plan configuration error"}
	}
	return Problem{http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"}
}

func denialProblem(adm *usage.Admission) Problem {
	switch adm.Code {
	case usage.DenialUnauthenticated:
		return Problem{http.StatusUnauthorized, "UNAUTHENTICATED", adm.Reason}
	case usage.DenialFeature:
		return Problem{http.StatusForbidden, "FEATURE_ACCESS_DENIED", adm.Reason}
	case usage.DenialQuota:
		return Problem{http.StatusForbidden, "USAGE_LIMIT_EXCEEDED", adm.Reason}
	}
	return Problem{http.StatusForbidden, "FORBIDDEN", adm.Reason}
}
