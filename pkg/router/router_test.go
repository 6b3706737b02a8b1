package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCustom = errors.New("custom error")

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("coded %d", e.code) }

type publicError struct{ msg string }

func (e publicError) Error() string  { return "internal: " + e.msg }
func (e publicError) Public() string { return e.msg }

func Test_ErrorMapper(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errCustom, func(err error) Error {
		return NewJsonError(http.StatusBadRequest, err.Error())
	})
	router.RegisterErrorMatcher(func(err error) bool {
		var ce codedError
		return errors.As(err, &ce)
	}, func(err error) Error {
		var ce codedError
		errors.As(err, &ce)
		return NewJsonError(ce.code, "coded")
	})

	tcs := []struct {
		name string
		err  error
		exp  Error
	}{
		{"sentinel", errCustom, NewJsonError(400, "custom error")},
		{"wrapped sentinel", fmt.Errorf("Op: %w", errCustom), NewJsonError(400, "Op: custom error")},
		{"matcher", fmt.Errorf("Op: %w", codedError{409}), NewJsonError(409, "coded")},
		{"unmapped", errors.New("random error"), router.defaultError},
		{"api error", NewJsonError(400, "API Error"), NewJsonError(400, "API Error")},
		{"wrapped api error", fmt.Errorf("Op: %w", NewJsonError(401, "nope")), NewJsonError(401, "nope")},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, router.mapError(tc.err))
		})
	}
}

func Test_Status(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		exp  Error
	}{
		{"plain", errCustom, NewJsonError(404, "custom error")},
		{"public", publicError{"taken"}, NewJsonError(404, "taken")},
		{"wrapped public", fmt.Errorf("Register: %w", publicError{"taken"}), NewJsonError(404, "taken")},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.exp, Status(http.StatusNotFound)(tc.err))
		})
	}
}

func Test_DerivedRoutersShareErrorHandling(t *testing.T) {
	router := New()
	router.RegisterErrorMapper(errCustom, func(err error) Error {
		return NewJsonError(http.StatusTeapot, err.Error())
	})

	fail := func(w http.ResponseWriter, r *http.Request) error {
		return errCustom
	}
	passThrough := func(next http.Handler) HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			next.ServeHTTP(w, r)
			return nil
		}
	}

	router.Route("/route", func(r *Router) {
		r.Get("/", fail)
	})
	router.Group(func(r *Router) {
		r.Use(passThrough)
		r.Get("/group", fail)
	})
	router.With(passThrough).Get("/with", fail)

	for _, path := range []string{"/route/", "/group", "/with"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusTeapot, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body JsonError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, NewJsonError(http.StatusTeapot, "custom error"), body)
		})
	}

	t.Run("registered after derivation", func(t *testing.T) {
		child := router.With(passThrough)
		child.Get("/late", func(w http.ResponseWriter, r *http.Request) error {
			return codedError{418}
		})
		router.RegisterErrorMatcher(func(err error) bool {
			return errors.As(err, new(codedError))
		}, func(error) Error { return NewJsonError(http.StatusConflict, "late") })

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/late", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
