package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// LoadOpenAPI loads and validates the API contract.
func LoadOpenAPI(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// RequestValidator checks request parameters and bodies against doc. Paths in
// doc are relative to basePath; requests for undocumented routes pass through
// so chi answers them.
func RequestValidator(base *transport.BaseHandler, doc *openapi3.T, basePath string, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	// Servers are matched by prefix stripping below.
	stripped := *doc
	stripped.Servers = nil

	router, err := legacy.NewRouter(&stripped)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}

	options := &openapi3filter.Options{
		AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		MultiError:         false,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			routed := r.Clone(r.Context())
			routed.URL.Path = strings.TrimPrefix(r.URL.Path, basePath)
			if routed.URL.Path == "" {
				routed.URL.Path = "/"
			}

			route, params, err := router.FindRoute(routed)
			if err != nil {
				var routeErr *routers.RouteError
				if !errors.As(err, &routeErr) {
					logger.Warn("openapi route lookup failed", "path", r.URL.Path, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    routed,
				PathParams: params,
				Route:      route,
				Options:    options,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				base.HandleServiceError(w, requestError(err))
				return
			}

			// the validator drained and replaced the routed copy's body
			r.Body = routed.Body
			next.ServeHTTP(w, r)
		})
	}, nil
}

func requestError(err error) *internal.AppError {
	appErr := internal.NewValidationError("request does not match the API contract", internal.ErrCodeValidationFailed)

	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		field := "body"
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		}
		return appErr.WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{
			{Field: field, Message: reqErr.Error(), Code: string(internal.ErrCodeValidationFailed)},
		}})
	}
	return appErr.WithDetails(internal.ValidationErrors{Errors: []internal.ValidationError{
		{Field: "request", Message: err.Error(), Code: string(internal.ErrCodeValidationFailed)},
	}})
}
