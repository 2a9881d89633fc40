package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/openclaw/clawjobs/internal/calllog"
	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/service"
	"github.com/openclaw/clawjobs/internal/store"
)

// DefaultMaxBodySize caps request bodies when the server does not set a
// limit of its own.
const DefaultMaxBodySize int64 = 1 << 20

// internalErrorMessage is the only thing callers learn about a 5xx.
const internalErrorMessage = "internal server error"

// errEmptyBody is returned by readJSON when the request has no payload.
var errEmptyBody = errors.New("request body is empty")

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error body. fields is only set for
// validation failures.
func writeError(w http.ResponseWriter, code int, message string, fields ...string) {
	writeJSON(w, code, model.ErrorResponse{Error: message, Fields: fields})
}

// NotFound answers requests for unknown API routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}

// MethodNotAllowed answers requests whose path exists under another method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// readJSON decodes the request body into v. An empty body leaves v untouched
// so that required-field checks report what is missing. The raw payload is
// attached to the call log of the request.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, DefaultMaxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	calllog.FromContext(r.Context()).SetRequestBody(body)
	return json.Unmarshal(body, v)
}

// decodeBody is readJSON for handlers that validate the decoded value
// themselves. It writes the 400 response and returns false on malformed
// input.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := readJSON(w, r, v)
	if err == nil || errors.Is(err, errEmptyBody) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusBadRequest, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// respondError maps a service or store error to its HTTP status. resource
// names the thing that was looked up, for 404 messages. Anything unexpected
// becomes a generic 500; the cause goes to the log and to Sentry.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, resource string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), verr.Fields...)
	case errors.Is(err, service.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, resource+" not found")
	case errors.Is(err, store.ErrJobClosed),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		hub := sentry.GetHubFromContext(r.Context())
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		hub.CaptureException(err)
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}
