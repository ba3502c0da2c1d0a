package session

import (
	"context"
	"fmt"

	"github.com/iliyamo/casino-floor/internal/repository"
)

type scopeKey struct{}

// WithCasinoScope limits Manager calls made with the returned context to
// rows of one casino. Calls that reach another casino's slip, visit or
// table fail with repository.ErrForbidden. An empty casinoID leaves ctx
// unrestricted.
func WithCasinoScope(ctx context.Context, casinoID string) context.Context {
	if casinoID == "" {
		return ctx
	}
	return context.WithValue(ctx, scopeKey{}, casinoID)
}

// CasinoScope returns the casino ctx is limited to, if any.
func CasinoScope(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(scopeKey{}).(string)
	return id, ok && id != ""
}

func checkScope(ctx context.Context, casinoID string) error {
	pinned, ok := CasinoScope(ctx)
	if !ok || pinned == casinoID {
		return nil
	}
	return fmt.Errorf("%w: scoped to casino %s, row belongs to %s", repository.ErrForbidden, pinned, casinoID)
}
