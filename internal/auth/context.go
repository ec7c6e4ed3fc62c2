package auth

import (
	"context"
)

// --- Context Helper Functions ---

// CallerFromContext retrieves the authenticated caller subject from the
// request context. Returns the subject and true if found, otherwise "" and
// false.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(CallerKey).(string)
	return caller, ok
}
