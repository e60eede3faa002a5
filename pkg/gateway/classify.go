package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/playbymail/ottoclient/pkg/apierror"
)

// errorBody matches the two failure shapes the backend emits: a bare
// message, or a list of title/detail error descriptors.
type errorBody struct {
	Message string                `json:"message"`
	Errors  []apierror.FieldError `json:"errors"`
}

// classify maps a non-2xx response to a typed error.
//
//   - 401 is a failed session check.
//   - other 4xx are validation failures, with field errors when the
//     body carries them.
//   - 5xx, and any body that parses to neither shape, are server
//     errors with a synthesized message.
func classify(method, path string, status int, raw []byte) *apierror.Error {
	fallback := fmt.Sprintf("%s %s failed with %d", method, path, status)

	var body errorBody
	parsed := json.Unmarshal(raw, &body) == nil && (body.Message != "" || len(body.Errors) > 0)

	message := fallback
	if parsed {
		if body.Message != "" {
			message = body.Message
		} else {
			message = body.Errors[0].Detail
			if message == "" {
				message = body.Errors[0].Title
			}
			if message == "" {
				message = fallback
			}
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return apierror.SessionExpired(status, message)
	case status >= 400 && status < 500 && parsed:
		return apierror.Validation(status, message, body.Errors)
	case status >= 400 && status < 500:
		// 4xx without a parseable body: nothing structured to report.
		return apierror.Server(status, message)
	default:
		return apierror.Server(status, message)
	}
}
