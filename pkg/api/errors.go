package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/collab/pkg/engine"
	"github.com/platinummonkey/collab/pkg/httputil"
	"github.com/platinummonkey/collab/pkg/observability"
)

// storageMessages are shown instead of the underlying failure, which may
// carry connection details
var storageMessages = map[string]string{
	"grant":  "failed to add team member",
	"revoke": "failed to remove team member",
}

// writeEngineError maps an engine error onto a response. op names the
// operation for the storage failure message.
func (h *Handlers) writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := engine.KindOf(err)
	resp := httputil.ErrorResponse{Error: err.Error(), Code: string(kind)}

	switch kind {
	case engine.KindForbidden:
		httputil.WriteErrorResponse(w, r, http.StatusForbidden, resp)
	case engine.KindInvalidTarget:
		httputil.WriteErrorResponse(w, r, http.StatusUnprocessableEntity, resp)
	case engine.KindInvalidRole:
		httputil.WriteErrorResponse(w, r, http.StatusBadRequest, resp)
	case engine.KindNotFound:
		resp.Error = "project not found"
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, resp)
	case engine.KindQuotaExceeded:
		var quota *engine.QuotaExceededError
		errors.As(err, &quota)
		resp.Details = map[string]interface{}{
			"plan":    string(quota.Plan),
			"limit":   quota.Limit,
			"current": quota.Current,
		}
		if h.upgradeURL != "" {
			resp.Details["upgrade_url"] = h.upgradeURL
		}
		httputil.WriteErrorResponse(w, r, http.StatusPaymentRequired, resp)
	case engine.KindStorage:
		observability.FromContext(r.Context()).WithError(err).WithField("op", op).Error("Access storage failure")
		resp.Error = storageMessages[op]
		if resp.Error == "" {
			resp.Error = "project access is temporarily unavailable"
		}
		w.Header().Set("Retry-After", "1")
		httputil.WriteErrorResponse(w, r, http.StatusServiceUnavailable, resp)
	default:
		observability.FromContext(r.Context()).WithError(err).WithField("op", op).Error("Unexpected access error")
		httputil.WriteErrorResponse(w, r, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: "internal server error",
			Code:  string(engine.KindUnknown),
		})
	}
}
