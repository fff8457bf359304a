// Package besteffort runs side effects whose failure must not fail the
// surrounding operation.
package besteffort

import (
	"context"
	"log"
)

// Run executes fn and logs any error under the given label instead of
// returning it. Used for provider deauthorization and similar cleanup that is
// desirable but not required for correctness.
func Run(ctx context.Context, logger *log.Logger, label string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		logger.Printf("%s: %v", label, err)
	}
}
