package n14

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nil071n/N14/core"
	"github.com/nil071n/N14/pkg/router"
)

// registerErrorMappers turns core errors into API errors.
func registerErrorMappers(r *router.Router) {
	r.RegisterErrorMapper(core.ErrNoUser, router.Status(http.StatusUnauthorized))
	r.RegisterErrorMapper(core.ErrConflictedUser, router.Status(http.StatusConflict))
	r.RegisterErrorMapper(core.ErrUserNotFound, router.Status(http.StatusNotFound))
	r.RegisterErrorMapper(core.ErrInvalidPassword, router.Status(http.StatusUnauthorized))
	r.RegisterErrorMatcher(core.IsValidationError, router.Status(http.StatusBadRequest))

	r.RegisterErrorMatcher(isDecodeError, func(error) router.Error {
		return router.NewJsonError(http.StatusBadRequest, "invalid input")
	})
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
