package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation is returned when prediction input is missing or malformed.
	ErrValidation = errors.New("invalid input")
	// ErrUnexpectedClass is returned when the classifier emits a class outside {0, 1}.
	ErrUnexpectedClass = errors.New("unexpected classifier output")
	// ErrArtifactLoad is returned when the model artifacts cannot be loaded.
	ErrArtifactLoad = errors.New("artifact load failed")
	// ErrRecording is returned when a prediction cannot be written to history.
	ErrRecording = errors.New("history recording failed")
	// ErrTrainingFatal is returned when the training pipeline cannot complete.
	ErrTrainingFatal = errors.New("training failed")
	// ErrInvalidCredentials is returned when username or password is incorrect.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserAlreadyExists is returned when trying to register a taken username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInvalidRefreshToken is returned when refresh token is invalid or expired.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Internal failures never
// leak their message.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return NewHTTPError(http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, ErrInvalidCredentials):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidCredentials.Error(), "INVALID_CREDENTIALS")
	case errors.Is(err, ErrInvalidRefreshToken):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidRefreshToken.Error(), "INVALID_REFRESH_TOKEN")
	case errors.Is(err, ErrUserAlreadyExists):
		return NewHTTPError(http.StatusConflict, ErrUserAlreadyExists.Error(), "USER_ALREADY_EXISTS")
	case errors.Is(err, ErrNotFound):
		return NewHTTPError(http.StatusNotFound, ErrNotFound.Error(), "NOT_FOUND")
	case errors.Is(err, ErrRecording):
		return NewHTTPError(http.StatusInternalServerError, ErrRecording.Error(), "RECORDING_FAILED")
	case errors.Is(err, ErrUnexpectedClass):
		return NewHTTPError(http.StatusInternalServerError, ErrUnexpectedClass.Error(), "UNEXPECTED_CLASS")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
