package respond

import (
	"net/http"
	"strings"
)

func BadRequest(w http.ResponseWriter, reqID, msg string) {
	ErrorWithID(w, http.StatusBadRequest, "bad_request", msg, reqID)
}

func NotFound(w http.ResponseWriter, reqID, msg string) {
	ErrorWithID(w, http.StatusNotFound, "not_found", msg, reqID)
}

func Unavailable(w http.ResponseWriter, reqID, msg string) {
	ErrorWithID(w, http.StatusServiceUnavailable, "unavailable", msg, reqID)
}

// MethodNotAllowed sets the Allow header before writing the body.
func MethodNotAllowed(w http.ResponseWriter, reqID string, allow ...string) {
	w.Header().Set("Allow", strings.Join(allow, ", "))
	ErrorWithID(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", reqID)
}
