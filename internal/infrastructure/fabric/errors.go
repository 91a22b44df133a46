package fabric

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

// apiError is the error body returned by the fabric services.
type apiError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Errors  []fieldError `json:"errors"`
}

type fieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var (
	conflictCodes   = map[string]bool{"Conflict": true, "InUse": true, "Duplicate": true, "AlreadyExists": true}
	notFoundCodes   = map[string]bool{"ResourceNotFound": true, "NotFound": true}
	validationCodes = map[string]bool{"InvalidParameters": true, "InvalidArgument": true, "ValidationFailed": true, "MissingParameter": true}
)

// classify maps a failed fabric response onto the domain taxonomy using the
// status and the structured error codes. The raw codes never reach the
// returned message.
func classify(service string, status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	message := apiErr.Message
	if message == "" {
		message = http.StatusText(status)
	}

	for _, fe := range apiErr.Errors {
		if conflictCodes[fe.Code] {
			return errors.Wrapf(domain.ErrConflict, "%s: %s %s", service, fe.Field, fieldMessage(fe))
		}
	}

	switch {
	case status == http.StatusConflict || conflictCodes[apiErr.Code]:
		return errors.Wrapf(domain.ErrConflict, "%s: %s", service, message)
	case status == http.StatusNotFound || notFoundCodes[apiErr.Code]:
		return errors.Wrapf(domain.ErrNotFound, "%s: %s", service, message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || validationCodes[apiErr.Code]:
		verr := &domain.ValidationError{Message: message}
		if len(apiErr.Errors) > 0 {
			verr.Field = apiErr.Errors[0].Field
			verr.Message = fieldMessage(apiErr.Errors[0])
		}
		return verr
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return errors.Wrapf(domain.ErrUnavailable, "%s: %s", service, message)
	}
	return errors.Errorf("%s request failed with status %d: %s", service, status, message)
}

func fieldMessage(fe fieldError) string {
	if fe.Message != "" {
		return fe.Message
	}
	return "is invalid"
}
