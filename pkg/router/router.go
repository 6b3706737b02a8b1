package router

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"runtime"

	"github.com/go-chi/chi/v5"
)

var DefaultError = JsonError{
	Code: http.StatusInternalServerError,
	Err:  "internal server error",
}

// Router is a wrapper around chi.Router that provides error handling.
// Handlers can return an error that will then get mapped to an error response.
// Error mappers can be registers for specific error types to provide custom error responses.
type Router struct {
	chi.Router
	*config
}

// config is shared by a router and every router derived from it.
type config struct {
	errorMappers []errorMapping
	defaultError JsonError
	logger       *slog.Logger
}

type errorMapping struct {
	match func(error) bool
	fn    ErrorMapper
}

func New(opts ...RouterOption) *Router {
	r := &Router{
		Router: chi.NewRouter(),
		config: &config{
			defaultError: DefaultError,
			logger:       slog.New(slog.NewTextHandler(os.Stderr, nil)),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RouterOption func(*Router)

func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithDefaultError(err JsonError) RouterOption {
	return func(r *Router) {
		r.defaultError = err
	}
}

// derive wraps a chi router created from a, keeping a's error handling.
func (a *Router) derive(r chi.Router) *Router {
	return &Router{Router: r, config: a.config}
}

// HandlerFunc is a function that handles an HTTP request and returns an error.
// When the handler fails to handler to request it should not write anything to the response writer
// instead it should return an error that will be mapped to an error response.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type Middleware func(http.Handler) HandlerFunc

// ErrorMapper is a function that maps go errors to API errors.
type ErrorMapper func(error) Error

// RegisterErrorMapper maps every error matching err, as reported by
// errors.Is, with fn.
func (a *Router) RegisterErrorMapper(err error, fn ErrorMapper) {
	a.RegisterErrorMatcher(func(e error) bool { return errors.Is(e, err) }, fn)
}

// RegisterErrorMatcher maps every error for which match returns true with fn.
// Mappers are tried in registration order.
func (a *Router) RegisterErrorMatcher(match func(error) bool, fn ErrorMapper) {
	a.errorMappers = append(a.errorMappers, errorMapping{match: match, fn: fn})
}

// mapError maps a go error to an API error.
// The mapping works as following:
//   - if the error is, or wraps, a JsonError it will be returned as is.
//   - otherwise the first matching error mapper is used.
//   - if no error mapper matches the default error will be returned.
func (a *Router) mapError(err error) Error {
	var apiErr JsonError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	for _, m := range a.errorMappers {
		if m.match(err) {
			return m.fn(err)
		}
	}
	return a.defaultError
}

func (a *Router) handleWithErr(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err != nil {
			handlerFn := runtime.FuncForPC(reflect.ValueOf(h).Pointer())
			a.logger.Error(err.Error(), slog.String("handler", handlerFn.Name()))
			resError := a.mapError(err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(resError.StatusCode())
			if err := resError.Encode(w); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
	}
}

func (a *Router) Get(path string, h HandlerFunc) {
	a.Router.Get(path, a.handleWithErr(h))
}

func (a *Router) Post(path string, h HandlerFunc) {
	a.Router.Post(path, a.handleWithErr(h))
}

func (a *Router) Put(path string, h HandlerFunc) {
	a.Router.Put(path, a.handleWithErr(h))
}

func (a *Router) Delete(path string, h HandlerFunc) {
	a.Router.Delete(path, a.handleWithErr(h))
}

func (a *Router) Route(path string, f func(r *Router)) {
	a.Router.Route(path, func(r chi.Router) {
		f(a.derive(r))
	})
}

func (a *Router) Group(f func(r *Router)) *Router {
	ch := a.Router.Group(func(r chi.Router) {
		f(a.derive(r))
	})
	return a.derive(ch)
}

func (a *Router) Use(middleware Middleware) {
	a.Router.Use(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
}

func (a *Router) With(middleware Middleware) *Router {
	ch := a.Router.With(func(h http.Handler) http.Handler {
		return a.handleWithErr(middleware(h))
	})
	return a.derive(ch)
}
