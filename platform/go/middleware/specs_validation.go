package middleware

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3filter"
)

// ValidateServiceKeyViaSwagger satisfies OpenAPI operations that declare the serviceKey
// security scheme. It only checks header presence; RequireServiceKey performs the real
// comparison before validation runs. Operations without a security block stay anonymous.
func ValidateServiceKeyViaSwagger(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "serviceKey" {
		return nil
	}

	r := input.RequestValidationInput.Request
	if r == nil {
		return fmt.Errorf("no request in validation input")
	}
	if r.Header.Get(ServiceKeyHeader) == "" {
		return fmt.Errorf("missing %s header", ServiceKeyHeader)
	}

	return nil
}
