// Package middleware provides FlowRepository decorators applied at the storage boundary.
package middleware

import "github.com/aretw0/testflow/pkg/ports"

// Middleware allows wrapping a FlowRepository to add behavior.
type Middleware func(ports.FlowRepository) ports.FlowRepository

// Chain applies middlewares so the first one listed is the outermost.
func Chain(store ports.FlowRepository, mws ...Middleware) ports.FlowRepository {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
