package router

import (
	"encoding/json"
	"errors"
	"io"
)

// Error is an error that knows how to render itself as an API response.
type Error interface {
	error
	StatusCode() int
	Encode(w io.Writer) error
}

type JsonError struct {
	Code int    `json:"code"`
	Err  string `json:"error"`
}

func NewJsonError(code int, err string) JsonError {
	return JsonError{
		Code: code,
		Err:  err,
	}
}

func (e JsonError) StatusCode() int {
	return e.Code
}

func (e JsonError) Error() string {
	return e.Err
}

func (e JsonError) Encode(w io.Writer) error {
	return json.NewEncoder(w).Encode(e)
}

// PublicError is implemented by errors whose message can be shown to the
// client as is.
type PublicError interface {
	error
	Public() string
}

// Status returns a mapper that answers with code. The response carries the
// message of the first PublicError in the chain, or err.Error() when there is
// none.
func Status(code int) ErrorMapper {
	return func(err error) Error {
		var pub PublicError
		if errors.As(err, &pub) {
			return NewJsonError(code, pub.Public())
		}
		return NewJsonError(code, err.Error())
	}
}
