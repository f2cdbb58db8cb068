package testutil

import (
	"context"
	"time"

	"charter/pkg/requestcontext"
)

// ContextAt pins the request clock, so date-triggered logic is deterministic.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}
