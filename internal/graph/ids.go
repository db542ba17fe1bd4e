package graph

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator returns a new unique node or edge identifier.
type IDGenerator func() string

// UUIDGenerator is the default generator.
func UUIDGenerator() string {
	return uuid.NewString()
}

// CounterGenerator returns a monotonic generator owned by the caller.
// IDs look like "<prefix>-1", "<prefix>-2", ...
func CounterGenerator(prefix string) IDGenerator {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}
