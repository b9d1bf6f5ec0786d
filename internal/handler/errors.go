package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"diabetesrisk/internal/auth"
	apperrors "diabetesrisk/internal/errors"
	"diabetesrisk/internal/ml"
)

// httpError maps a service error to the JSON error body. Server side
// failures are logged here and nowhere else.
func httpError(c echo.Context, err error) *echo.HTTPError {
	he := apperrors.MapErrorToHTTP(err)
	body := he.ToErrorResponse()

	var verr *ml.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields()
	}
	if he.StatusCode >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"code", he.Code,
			"err", err,
		)
	}
	return echo.NewHTTPError(he.StatusCode, body)
}

func badRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, apperrors.ErrorResponse{
		Error: msg,
		Code:  "VALIDATION_ERROR",
	})
}

// currentUser returns the claims the JWT middleware stored on the context.
func currentUser(c echo.Context) (*auth.Claims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{Error: "missing token", Code: "UNAUTHORIZED"})
	}
	claims, ok := token.Claims.(*auth.Claims)
	if !ok || claims.UserID == 0 {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{Error: "invalid token", Code: "UNAUTHORIZED"})
	}
	return claims, nil
}
