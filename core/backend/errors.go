package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/relabs-tech/garage/core/csql"
	"github.com/relabs-tech/garage/core/logger"
	"github.com/relabs-tech/garage/core/schema"
	"github.com/relabs-tech/garage/core/store"
)

// ErrorDto is the body of every error response
type ErrorDto struct {
	ErrorCode        int    `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	NameMethod       string `json:"nameMethod"` // http method of the request
	URI              string `json:"uri"`        // request path without query
}

// requestError is a malformed request, answered with 400
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(format string, a ...interface{}) error {
	return &requestError{message: fmt.Sprintf(format, a...)}
}

// statusFromError translates an error of the store or the request into a http status
func statusFromError(err error) int {
	var (
		reqErr        *requestError
		validationErr *schema.ValidationError
	)
	switch {
	case store.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, csql.ErrUniqueViolation):
		return http.StatusConflict
	case errors.Is(err, csql.ErrNotNullViolation), errors.Is(err, csql.ErrForeignKeyViolation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &reqErr), errors.As(err, &validationErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError answers the request with an ErrorDto. Internal errors are logged with
// their number, the client only sees "Error <number>".
func writeError(w http.ResponseWriter, r *http.Request, handler string, number int, err error) {
	rlog := logger.FromContext(r.Context())
	status := statusFromError(err)

	description := err.Error()
	switch status {
	case http.StatusInternalServerError:
		rlog.WithError(err).Errorf("Error %d: %s", number, handler)
		description = fmt.Sprintf("Error %d", number)
	case http.StatusConflict:
		description = "conflict: " + err.Error()
	}

	dto := ErrorDto{
		ErrorCode:        status,
		ErrorDescription: description,
		NameMethod:       r.Method,
		URI:              r.URL.Path,
	}
	jsonData, _ := json.Marshal(dto)
	rlog.Infoln("error response:", string(jsonData))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(jsonData)
}
