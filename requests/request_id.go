package requests

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// GetRequestID returns the request's ID, generating and pinning one on the
// request when the caller did not supply any.
func GetRequestID(req *http.Request) string {
	requestID := req.Header.Get(requestIDHeader)
	if requestID != "" {
		return requestID
	}
	requestID = strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	req.Header.Set(requestIDHeader, requestID)
	return requestID
}
