package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/wenc23/zimagetool/internal/jobs"
	"github.com/wenc23/zimagetool/pkg/types"
)

// statusFor maps an error kind to an HTTP status code.
func statusFor(k jobs.Kind) int {
	switch k {
	case jobs.KindInvalidRequest, jobs.KindInvalidParameters:
		return http.StatusBadRequest
	case jobs.KindNotFound, jobs.KindPathNotFound:
		return http.StatusNotFound
	case jobs.KindNotLoaded, jobs.KindAlreadyLoading, jobs.KindCancelled:
		return http.StatusConflict
	case jobs.KindBusy:
		return http.StatusTooManyRequests
	case jobs.KindOutOfMemory:
		return http.StatusInsufficientStorage
	case jobs.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes the JSON error payload.
func writeError(w http.ResponseWriter, err error) int {
	je := jobs.Classify(err)
	if je == nil {
		je = &jobs.Error{Kind: jobs.KindUnclassified, Message: "unknown error"}
	}
	status := statusFor(je.Kind)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure(string(je.Kind))
	}
	writeJSONError(w, status, string(je.Kind), je.Message, je.Hint)
	return status
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, kind, msg, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Success: false,
		Message: msg,
		Error:   kind,
		Code:    status,
		Hint:    hint,
	})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusBadRequest, string(jobs.KindInvalidRequest), msg, "")
}
