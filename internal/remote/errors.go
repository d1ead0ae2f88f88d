package remote

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// PostgREST code returned when single-row mode matches no rows.
const codeNoRows = "PGRST116"

// APIError is a non-2xx response from the remote service. Message carries the
// service-provided text unchanged.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody is the union of the error shapes used by the rest, storage and auth services.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
}

func parseAPIError(status int, payload []byte) *APIError {
	apiErr := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(payload, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(payload))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	apiErr.Code = body.ErrorCode
	if apiErr.Code == "" && len(body.Code) > 0 {
		var s string
		if json.Unmarshal(body.Code, &s) == nil {
			apiErr.Code = s
		}
	}
	apiErr.Details = body.Details
	apiErr.Hint = body.Hint

	for _, m := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// IsNotFound reports whether err is a single-row request that matched no rows.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == codeNoRows
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden)
}
