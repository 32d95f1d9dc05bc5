package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/log"
)

// Ok is a bare healthcheck endpoint.
func Ok() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		io.WriteString(w, "OK")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.LogNoRequestID("error writing JSON response", "error", err)
	}
}

func internalErr(w http.ResponseWriter, msg string, err error) {
	errors.WriteHTTPInternalServerError(w, msg, err)
}
