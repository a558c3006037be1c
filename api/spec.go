package api

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed api.yaml
var rawSpec []byte

// GetSwagger parses the embedded API document.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()

	swagger, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("error loading API document: %w", err)
	}

	return swagger, nil
}

// LoadValidated parses the embedded API document and checks it against the OpenAPI schema.
func LoadValidated(ctx context.Context) (*openapi3.T, error) {
	swagger, err := GetSwagger()
	if err != nil {
		return nil, err
	}

	err = swagger.Validate(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid API document: %w", err)
	}

	return swagger, nil
}
