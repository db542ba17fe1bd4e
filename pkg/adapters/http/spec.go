package http

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

var (
	specOnce sync.Once
	specDoc  *openapi3.T
	specErr  error
)

// Spec returns the parsed and validated OpenAPI document served at /openapi.yaml.
func Spec() (*openapi3.T, error) {
	specOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(rawSpec)
		if err != nil {
			specErr = fmt.Errorf("failed to parse openapi spec: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			specErr = fmt.Errorf("invalid openapi spec: %w", err)
			return
		}
		specDoc = doc
	})
	return specDoc, specErr
}
