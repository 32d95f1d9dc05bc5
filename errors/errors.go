package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/focustagency/media-api/log"
)

// Sentinel errors for the failure modes the HTTP layer maps onto status
// codes. The specific gate failure cause is logged server-side only.
var (
	ErrMissingCredential = errors.New("credential missing")
	ErrNotFound          = errors.New("not found")
)

type apiError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHTTPError(w http.ResponseWriter, msg string, status int, err error) apiError {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": msg}); encErr != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", encErr)
	}
	if err != nil {
		log.LogNoRequestID("request failed", "status", status, "msg", msg, "cause", err.Error())
	}
	return apiError{msg, status, err}
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusBadRequest, err)
}

// WriteHTTPForbidden writes the generic authorization failure. The cause is
// logged, never disclosed to the caller.
func WriteHTTPForbidden(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusForbidden, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) apiError {
	return writeHTTPError(w, msg, http.StatusInternalServerError, err)
}
